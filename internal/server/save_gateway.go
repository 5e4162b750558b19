package server

import (
	"context"
	"os"
	"strings"

	"github.com/kavia-common/deviceform/modules/deviceform/domain/types"
	"github.com/kavia-common/deviceform/modules/deviceform/infrastructure/gateway"
)

// saveGateway forwards an edited device state to the host application,
// which owns persistence. A nil gateway means no SAVE_GATEWAY_URL was
// configured and save requests are rejected.
type saveGateway interface {
	PerformSave(ctx context.Context, tenantID string, state types.DeviceState) (bool, error)
}

func newSaveGatewayFromEnv() (saveGateway, error) {
	baseURL := strings.TrimSpace(os.Getenv("SAVE_GATEWAY_URL"))
	if baseURL == "" {
		return nil, nil
	}
	return gateway.New(baseURL)
}
