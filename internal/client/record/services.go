package record

import (
	"log/slog"

	"github.com/iudanet/recordsync/internal/client/ack"
	"github.com/iudanet/recordsync/internal/client/connection"
	"github.com/iudanet/recordsync/internal/client/dirty"
	"github.com/iudanet/recordsync/internal/client/merge"
	"github.com/iudanet/recordsync/internal/client/offline"
	"github.com/iudanet/recordsync/internal/client/timeout"
	"github.com/iudanet/recordsync/internal/config"
	"github.com/iudanet/recordsync/internal/jsonpath"
	"github.com/iudanet/recordsync/internal/timer"
)

// services общие для всех Core зависимости. Владелец Handler.
type services struct {
	conn      connection.Connection
	scheduler timer.Scheduler
	timeouts  *timeout.Registry
	acks      *ack.Service
	dirty     *dirty.Service
	merge     *merge.Service
	offline   *offline.Store
	paths     *jsonpath.Engine
	logger    *slog.Logger
	opts      config.Options
}
