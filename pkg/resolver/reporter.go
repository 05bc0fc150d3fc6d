package resolver

import (
	"github.com/charmbracelet/log"

	"github.com/matzehuels/stacklock/pkg/candidate"
	"github.com/matzehuels/stacklock/pkg/requirement"
)

// Reporter receives notifications from the engine. It has no influence on
// the outcome.
type Reporter interface {
	OnPin(key requirement.Key, c *candidate.Candidate)
	OnBacktrack(key requirement.Key)
}

// PhaseReporter is a Reporter that also wants run and round boundaries.
type PhaseReporter interface {
	Reporter
	Starting()
	StartingRound(round int)
	Ending(res *Result, err error)
}

// NoopReporter discards every notification.
type NoopReporter struct{}

func (NoopReporter) OnPin(requirement.Key, *candidate.Candidate) {}
func (NoopReporter) OnBacktrack(requirement.Key)                 {}

// LogReporter writes pins and backtracks to a logger at debug level.
type LogReporter struct {
	Logger *log.Logger
}

func (r LogReporter) OnPin(key requirement.Key, c *candidate.Candidate) {
	r.Logger.Debug("pin", "package", key, "version", c.Version())
}

func (r LogReporter) OnBacktrack(key requirement.Key) {
	r.Logger.Debug("backtrack", "package", key)
}

func (r LogReporter) Starting() { r.Logger.Debug("resolution started") }

func (r LogReporter) StartingRound(round int) {}

func (r LogReporter) Ending(res *Result, err error) {
	if err != nil {
		r.Logger.Debug("resolution failed", "err", err)
		return
	}
	r.Logger.Debug("resolution finished", "packages", len(res.Pinned), "rounds", res.Rounds)
}

var _ PhaseReporter = LogReporter{}
