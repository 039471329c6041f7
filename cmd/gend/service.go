package main

import (
	"context"
	"time"

	"gend/internal/admission"
	"gend/internal/catalog"
	"gend/internal/download"
	"gend/internal/lifecycle"
	"gend/internal/routing"
	"gend/internal/session"
	"gend/pkg/types"
)

// gateway bundles the domain components behind the httpapi.Service interface.
type gateway struct {
	dispatcher *routing.Dispatcher
	catalog    *catalog.Catalog
	lifecycle  *lifecycle.Manager
	queue      *admission.Queue
	sessions   *session.Manager
	downloads  *download.Manager
	pinned     string
	started    time.Time
}

func (g *gateway) Dispatch(ctx context.Context, req types.GenerateRequest) (<-chan types.Event, string, error) {
	return g.dispatcher.Dispatch(ctx, req)
}

func (g *gateway) Regenerate(ctx context.Context, sessionID string, req types.GenerateRequest) (<-chan types.Event, string, error) {
	return g.dispatcher.Regenerate(ctx, sessionID, req)
}

func (g *gateway) CancelRequest(requestID string) bool {
	return g.dispatcher.Cancel(requestID)
}

func (g *gateway) QueueStatus(requestID string) (types.QueueStatus, bool) {
	return g.dispatcher.QueueStatus(requestID)
}

func (g *gateway) ListEngines(modality types.Modality) []types.EngineHandle {
	return g.catalog.ListEngines(modality)
}

func (g *gateway) Status() types.StatusResponse {
	snap := g.lifecycle.Status()
	resident := make(map[string]lifecycle.InstanceStatus, len(snap.Instances))
	for _, inst := range snap.Instances {
		resident[inst.EngineID] = inst
	}
	handles := g.catalog.ListEngines("")
	engines := make([]types.EngineStatus, 0, len(handles))
	for _, h := range handles {
		es := types.EngineStatus{
			EngineID:      h.ID,
			Kind:          h.Kind,
			State:         "ready",
			MaxQueueDepth: g.queue.MaxDepth(),
			Pinned:        h.ID == g.pinned,
		}
		if h.Kind == types.KindLocal {
			es.State = string(lifecycle.StateUnloaded)
			if inst, ok := resident[h.ID]; ok {
				es.State = string(inst.State)
				es.LastUsed = inst.LastUsedUnix
				es.CapacityCost = inst.CapacityCost
			}
		}
		es.QueueLen, es.Inflight = g.queue.Depth(h.ID)
		engines = append(engines, es)
	}
	return types.StatusResponse{
		Engines:        engines,
		CapacityBudget: snap.Budget,
		CapacityUsed:   snap.Used,
		EvictionsTotal: snap.EvictionsTotal,
		LoadsTotal:     snap.LoadsTotal,
		ActiveSessions: g.sessions.ActiveCount(),
		ActiveJobs:     g.downloads.ActiveCount(),
		UptimeSeconds:  int64(time.Since(g.started).Seconds()),
		ServerTimeUnix: time.Now().Unix(),
	}
}

// Ready reports whether the pinned engine (if any) finished loading.
func (g *gateway) Ready() bool {
	if g.pinned == "" {
		return true
	}
	switch g.lifecycle.State(g.pinned) {
	case lifecycle.StateLoaded, lifecycle.StateBusy:
		return true
	}
	return false
}

func (g *gateway) GetSession(id string) (types.Session, bool) {
	return g.sessions.Get(id)
}

func (g *gateway) ListSessions() []types.Session {
	return g.sessions.List()
}

func (g *gateway) CloseSession(id string) error {
	return g.sessions.Close(id)
}

func (g *gateway) SetSessionTitle(ctx context.Context, id, title string) error {
	return g.sessions.SetTitle(ctx, id, title)
}

func (g *gateway) SubmitJob(req types.SubmitDownloadRequest) (string, error) {
	return g.downloads.Submit(req.ModelID, req.SourceType, req.SourceURI)
}

func (g *gateway) JobStatus(id string) (types.DownloadJob, bool) {
	return g.downloads.Status(id)
}

func (g *gateway) ListJobs() []types.DownloadJob {
	return g.downloads.List()
}

func (g *gateway) CancelJob(id string) bool {
	return g.downloads.Cancel(id)
}
