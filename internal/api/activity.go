package api

import (
	"github.com/google/uuid"
	"github.com/tubelens/tubelens/internal/database"
	"github.com/tubelens/tubelens/internal/http/websocket"
	"github.com/tubelens/tubelens/internal/run"
)

const (
	TitleRunUpdate   = "RUN_UPDATE"
	TitleRunComplete = "RUN_COMPLETE"
	TitleRunFailed   = "RUN_FAILED"
)

type (
	RunUpdate struct {
		RunID uuid.UUID `json:"run_id"`
		Run   *run.Run  `json:"run"`
	}

	// runStore is a union of the controller and broadcaster store needs.
	runStore interface {
		GetRun(db database.Queryable, id uuid.UUID) (*run.Run, error)
		ListRuns(db database.Queryable, limit int) ([]*run.RunSummary, error)
		RowsForRun(db database.Queryable, runID uuid.UUID) ([]*run.VideoRow, error)
		LatestRun(db database.Queryable, query string) (*run.Run, error)
	}

	broadcaster struct {
		socketHub *websocket.SocketHub
		db        database.Manager
		store     runStore
	}
)

func newBroadcaster(socketHub *websocket.SocketHub, db database.Manager, store runStore) *broadcaster {
	return &broadcaster{socketHub, db, store}
}

func (hub *broadcaster) BroadcastRunUpdate(id uuid.UUID) error {
	return hub.broadcastRun(TitleRunUpdate, id)
}

func (hub *broadcaster) BroadcastRunComplete(id uuid.UUID) error {
	return hub.broadcastRun(TitleRunComplete, id)
}

func (hub *broadcaster) BroadcastRunFailed(id uuid.UUID) error {
	return hub.broadcastRun(TitleRunFailed, id)
}

func (hub *broadcaster) broadcastRun(title string, id uuid.UUID) error {
	scrapeRun, err := hub.store.GetRun(hub.db.GetSqlxDb(), id)
	if err != nil {
		return err
	}

	hub.socketHub.Send(&websocket.SocketMessage{
		Title: title,
		Body:  map[string]interface{}{"arguments": RunUpdate{RunID: id, Run: scrapeRun}},
		Type:  websocket.Update,
	})

	return nil
}
