package api

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/zlnvch/flipbook/api/rest"
	"github.com/zlnvch/flipbook/api/ws"
	"github.com/zlnvch/flipbook/service"
	"github.com/zlnvch/flipbook/store"
	"github.com/zlnvch/flipbook/transport"
)

type FlipbookAPI struct {
	Service     *service.Service
	restHandler *rest.Handler
	wsHandler   *ws.Handler
	wsUpgrader  websocket.Upgrader
	shutdownCtx context.Context
}

// NewFlipbookAPI starts the hub and the snapshot batcher. Both stop when
// shutdownCtx is done.
func NewFlipbookAPI(
	kv store.KeyValueStore,
	bookTransport transport.Transport,
	jwtSecret []byte,
	snapshotFlushMillis int,
	shutdownCtx context.Context,
) *FlipbookAPI {
	wsHub := ws.NewHub(bookTransport)
	go wsHub.Run(shutdownCtx)

	svc := service.NewService(kv, bookTransport, jwtSecret, snapshotFlushMillis)
	go svc.SnapshotBatcher.Run(shutdownCtx)

	return &FlipbookAPI{
		Service:     svc,
		restHandler: rest.NewHandler(svc),
		wsHandler:   ws.NewHandler(svc, wsHub),
		shutdownCtx: shutdownCtx,
	}
}

func (flipbookAPI *FlipbookAPI) RegisterRoutes(mux *http.ServeMux, requiredOrigin string) {
	// Health check endpoint (no auth required)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("/session", flipbookAPI.restHandler.HandleSession)
	mux.HandleFunc("/books/{bookId}/pages", flipbookAPI.restHandler.HandleBookPages)
	mux.HandleFunc("/prefs", flipbookAPI.restHandler.HandlePrefs)

	flipbookAPI.wsUpgrader = flipbookAPI.wsHandler.NewWsUpgrader(requiredOrigin)
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		flipbookAPI.wsHandler.ServeWS(flipbookAPI.wsUpgrader, w, r, flipbookAPI.shutdownCtx)
	})
}
