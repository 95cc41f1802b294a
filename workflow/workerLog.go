package workflow

import (
	"context"

	"bitbucket.org/mmdatafocus/inspect_backend/config"
	"bitbucket.org/mmdatafocus/inspect_backend/utils"
	"github.com/sirupsen/logrus"
)

// logPassError records a failed background pass, tagged with the pass
// correlation id and the originating device when one is in the context.
func logPassError(logger *logrus.Logger, funcName string, ctx context.Context, err error) {
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	var data any
	if deviceId, ok := utils.GetDeviceIdFromContext(ctx); ok {
		data = logrus.Fields{"device_id": deviceId}
	}
	config.LogError(logger, "workflow", funcName, cid, data, err)
}
