package telemetry

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// keyAgg tracks sampled hit counts for one rule/decision key between
// exporter ticks.
type keyAgg struct {
	hits       atomic.Int64
	lastUpdate atomic.Int64
	label      string
}

var (
	triggerAgg  sync.Map // map[uint64]*keyAgg, keyed by rule name hash
	decisionAgg sync.Map // map[uint64]*keyAgg, keyed by "phase:action" hash

	exporterMu   sync.Mutex
	exporterStop chan struct{}
	exporterDone chan struct{}
	currCfg      atomic.Value

	exporterLogger atomic.Pointer[zap.SugaredLogger]
)

// SetLogger assigns the logger used by the periodic top-N summary. If never
// called, the exporter loop still runs but emits nothing (nil-safe no-op).
func SetLogger(l *zap.SugaredLogger) {
	exporterLogger.Store(l)
}

func startOrUpdateExporter(cfg Config) {
	exporterMu.Lock()
	defer exporterMu.Unlock()

	currCfg.Store(cfg)

	if exporterStop != nil {
		close(exporterStop)
		<-exporterDone
		exporterStop, exporterDone = nil, nil
	}
	if !cfg.Enabled || cfg.LogInterval <= 0 {
		return
	}
	exporterStop = make(chan struct{})
	exporterDone = make(chan struct{})
	go exporterLoop(exporterStop, exporterDone)
}

func exporterLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	cfgAny := currCfg.Load()
	cfg, _ := cfgAny.(Config)
	ticker := time.NewTicker(cfg.LogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			publishSnapshot(cfg)
		case <-stop:
			return
		}
	}
}

func publishSnapshot(cfg Config) {
	logger := exporterLogger.Load()
	if logger == nil {
		return
	}
	idleTTL := 2 * cfg.LogInterval
	cutoff := time.Now().Add(-idleTTL).UnixNano()

	topTriggers := topN(&triggerAgg, cutoff, cfg.TopN)
	topDecisions := topN(&decisionAgg, cutoff, cfg.TopN)

	logger.Infow("checkstream telemetry summary",
		"top_triggered_rules", topTriggers,
		"top_decisions", topDecisions,
	)
}

type ranked struct {
	label string
	hits  int64
}

func topN(m *sync.Map, cutoff int64, n int) []ranked {
	var rows []ranked
	m.Range(func(k, v any) bool {
		ka := v.(*keyAgg)
		last := ka.lastUpdate.Load()
		if last > 0 && last < cutoff {
			m.Delete(k)
			return true
		}
		rows = append(rows, ranked{label: ka.label, hits: ka.hits.Load()})
		return true
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].hits > rows[j].hits })
	if n > 0 && len(rows) > n {
		rows = rows[:n]
	}
	return rows
}

func exporterRecordTrigger(keyHash uint64, ruleName string) {
	ka := getAgg(&triggerAgg, keyHash, ruleName)
	ka.hits.Add(1)
	ka.lastUpdate.Store(time.Now().UnixNano())
}

func exporterRecordDecision(keyHash uint64) {
	ka := getAgg(&decisionAgg, keyHash, "")
	ka.hits.Add(1)
	ka.lastUpdate.Store(time.Now().UnixNano())
}

func getAgg(m *sync.Map, keyHash uint64, label string) *keyAgg {
	if v, ok := m.Load(keyHash); ok {
		return v.(*keyAgg)
	}
	ka := &keyAgg{label: label}
	actual, _ := m.LoadOrStore(keyHash, ka)
	return actual.(*keyAgg)
}
