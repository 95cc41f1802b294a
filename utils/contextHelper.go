package utils

import (
	"context"

	"bitbucket.org/mmdatafocus/inspect_backend/appctx"
)

var (
	ContextKeyUserId        = appctx.ContextKeyUserId
	ContextKeyDeviceId      = appctx.ContextKeyDeviceId
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
)

func GetUserIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyUserId)
}

func GetDeviceIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyDeviceId)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetUserIdInContext(ctx context.Context, userId string) context.Context {
	return appctx.Set(ctx, ContextKeyUserId, userId)
}

func SetDeviceIdInContext(ctx context.Context, deviceId string) context.Context {
	return appctx.Set(ctx, ContextKeyDeviceId, deviceId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}
