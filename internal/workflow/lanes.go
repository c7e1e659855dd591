package workflow

import (
	"log/slog"

	"pixguard/internal/catalog"
	"pixguard/internal/stage"
)

// StageSet bundles the concrete pipeline handlers the manager orchestrates.
type StageSet struct {
	Fingerprinter stage.Handler
	Fetcher       stage.Handler
	Scorer        stage.Handler
	Persister     stage.Handler
	Notifier      stage.Handler
}

type pipelineStage struct {
	name             string
	handler          stage.Handler
	startStatus      catalog.Status
	processingStatus catalog.Status
	doneStatus       catalog.Status
}

type laneState struct {
	kind                 catalog.ProcessingLane
	name                 string
	stages               []pipelineStage
	statusOrder          []catalog.Status
	stageByStart         map[catalog.Status]pipelineStage
	processingStatuses   []catalog.Status
	logger               *slog.Logger
	notificationsEnabled bool
	runReclaimer         bool
}

func (l *laneState) finalize() {
	if l == nil {
		return
	}
	l.stageByStart = make(map[catalog.Status]pipelineStage, len(l.stages))
	l.statusOrder = make([]catalog.Status, 0, len(l.stages))
	seenProcessing := make(map[catalog.Status]struct{})
	for _, stg := range l.stages {
		l.stageByStart[stg.startStatus] = stg
		l.statusOrder = append(l.statusOrder, stg.startStatus)
		if stg.processingStatus != "" {
			if _, ok := seenProcessing[stg.processingStatus]; !ok {
				l.processingStatuses = append(l.processingStatuses, stg.processingStatus)
				seenProcessing[stg.processingStatus] = struct{}{}
			}
		}
	}
}

func (l *laneState) stageForStatus(status catalog.Status) (pipelineStage, bool) {
	if l == nil {
		return pipelineStage{}, false
	}
	stg, ok := l.stageByStart[status]
	return stg, ok
}

// ConfigureStages registers the concrete stage handlers the workflow will run.
// Stages are chained by status, so omitting a handler makes the next stage
// pick runs up where the previous one left off.
func (m *Manager) ConfigureStages(set StageSet) {
	analysis := &laneState{kind: catalog.LaneAnalysis, name: string(catalog.LaneAnalysis), notificationsEnabled: true}
	matching := &laneState{kind: catalog.LaneMatching, name: string(catalog.LaneMatching), notificationsEnabled: false}

	if set.Fingerprinter != nil {
		analysis.stages = append(analysis.stages, pipelineStage{
			name:             "fingerprinter",
			handler:          set.Fingerprinter,
			startStatus:      catalog.StatusPending,
			processingStatus: catalog.StatusFingerprinting,
			doneStatus:       catalog.StatusFingerprinted,
		})
	}
	scorerStart := catalog.StatusFingerprinted
	if set.Fetcher != nil {
		matching.stages = append(matching.stages, pipelineStage{
			name:             "fetcher",
			handler:          set.Fetcher,
			startStatus:      catalog.StatusFingerprinted,
			processingStatus: catalog.StatusFetching,
			doneStatus:       catalog.StatusFetched,
		})
		scorerStart = catalog.StatusFetched
	}
	persisterStart := scorerStart
	if set.Scorer != nil {
		matching.stages = append(matching.stages, pipelineStage{
			name:             "scorer",
			handler:          set.Scorer,
			startStatus:      scorerStart,
			processingStatus: catalog.StatusScoring,
			doneStatus:       catalog.StatusScored,
		})
		persisterStart = catalog.StatusScored
	}
	notifierStart := persisterStart
	if set.Persister != nil {
		matching.stages = append(matching.stages, pipelineStage{
			name:             "persister",
			handler:          set.Persister,
			startStatus:      persisterStart,
			processingStatus: catalog.StatusPersisting,
			doneStatus:       catalog.StatusPersisted,
		})
		notifierStart = catalog.StatusPersisted
	}
	if set.Notifier != nil {
		matching.stages = append(matching.stages, pipelineStage{
			name:             "notifier",
			handler:          set.Notifier,
			startStatus:      notifierStart,
			processingStatus: catalog.StatusNotifying,
			doneStatus:       catalog.StatusCompleted,
		})
	}

	lanes := make(map[catalog.ProcessingLane]*laneState)
	order := make([]catalog.ProcessingLane, 0, 2)

	if len(analysis.stages) > 0 {
		analysis.finalize()
		lanes[analysis.kind] = analysis
		order = append(order, analysis.kind)
	}
	if len(matching.stages) > 0 {
		matching.finalize()
		lanes[matching.kind] = matching
		order = append(order, matching.kind)
	}

	for _, lane := range lanes {
		lane.runReclaimer = len(lane.processingStatuses) > 0
	}

	m.mu.Lock()
	m.lanes = lanes
	m.laneOrder = order
	m.mu.Unlock()
}
