package retrieval

import "github.com/poiesic/studyrag/core"

// Monitor provides hooks to observe a retrieval.
// Implement this interface to trace what the index returned and what was kept.
type Monitor interface {
	Start(question string, topK int)
	AfterQuery(results []core.RetrievalResult)
	BelowThreshold(result core.RetrievalResult)
	Finish(results []core.RetrievalResult)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ int)                {}
func (n *noopMonitor) AfterQuery(_ []core.RetrievalResult)   {}
func (n *noopMonitor) BelowThreshold(_ core.RetrievalResult) {}
func (n *noopMonitor) Finish(_ []core.RetrievalResult)       {}
