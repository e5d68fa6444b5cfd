// Package peerstore is the persistent, identity-keyed peer book (spec.md
// §4.9, C9): it scores peers by recent dial/handshake outcomes, derives a
// human-facing mood label, and enforces a capacity bound that never evicts
// seeds. Its on-disk layout follows core/chainstore's accessor/
// prefix-iteration idiom, scoped to a node_id-keyed peer record.
package peerstore

// Role classifies a peer's position in the network (spec.md §3 "Peer entity").
type Role string

const (
	RoleAnchor        Role = "anchor"
	RoleSeed          Role = "seed"
	RoleConstellation Role = "constellation"
)

// Mood is a derived, human-facing label summarizing a peer's recent
// behavior (spec.md §4.9 "Mood derivation").
type Mood string

const (
	MoodCalm        Mood = "calm"
	MoodWarning     Mood = "warning"
	MoodStorm       Mood = "storm"
	MoodWounded     Mood = "wounded"
	MoodCelebration Mood = "celebration"
)

// Peer is one entry in the Peer Store (spec.md §3 "Peer entity").
type Peer struct {
	NodeID        string
	NodeTag       string
	PublicKey     []byte
	VisionAddress string

	LastIP   string
	LastPort uint16
	Role     Role

	HealthScore   int64 // 0-100, clamped
	LastSuccessTS uint64
	LastFailureTS uint64
	FailCount     uint64
	SuccessCount  uint64

	Trusted bool
	IsSeed  bool

	FirstSeenTS uint64
}

const (
	minHealthScore = 0
	maxHealthScore = 100

	// successDelta/failureDelta are the EMA-style adjustments spec.md §4.9
	// specifies verbatim ("+5 on success, -10 on failure").
	successDelta = 5
	failureDelta = -10
)

func clampHealth(v int64) int64 {
	if v < minHealthScore {
		return minHealthScore
	}
	if v > maxHealthScore {
		return maxHealthScore
	}
	return v
}

// recordSuccess applies the success-side health adjustment in place.
func (p *Peer) recordSuccess(ts uint64) {
	p.HealthScore = clampHealth(p.HealthScore + successDelta)
	p.LastSuccessTS = ts
	p.SuccessCount++
}

// recordFailure applies the failure-side health adjustment in place. The
// failure reason is logged by Store.RecordFailure, not stored: the record
// only tracks the count and timestamp.
func (p *Peer) recordFailure(ts uint64) {
	p.HealthScore = clampHealth(p.HealthScore + failureDelta)
	p.LastFailureTS = ts
	p.FailCount++
}

// recentFailureRate is fail_count's share of all recorded outcomes — the
// "recent_failure_rate" input to mood derivation (spec.md §4.9). It is a
// lifetime rate rather than a windowed one: the Peer Store keeps no
// sliding-window history, so the EMA-adjusted health_score already carries
// the "recent" weighting and this rate only needs to capture how noisy a
// peer's history has been overall.
func (p *Peer) recentFailureRate() float64 {
	total := p.SuccessCount + p.FailCount
	if total == 0 {
		return 0
	}
	return float64(p.FailCount) / float64(total)
}

// deriveMood is the piecewise function spec.md §4.9 requires without
// prescribing exact thresholds; this policy is an Open Question decision
// (see DESIGN.md): health_score is the primary signal, recent_failure_rate
// demotes a mood one notch when it is elevated, and a very recent clean
// success promotes calm to celebration.
func (p *Peer) deriveMood(now uint64) (Mood, float64) {
	score := float64(p.HealthScore) / maxHealthScore
	failRate := p.recentFailureRate()

	var mood Mood
	switch {
	case p.HealthScore >= 85 && failRate < 0.1:
		mood = MoodCalm
	case p.HealthScore >= 60 && failRate < 0.3:
		mood = MoodWarning
	case p.HealthScore >= 25:
		mood = MoodStorm
	default:
		mood = MoodWounded
	}

	const recentSuccessWindowSeconds = 300
	if mood == MoodCalm && p.LastSuccessTS != 0 && now >= p.LastSuccessTS && now-p.LastSuccessTS <= recentSuccessWindowSeconds && failRate == 0 {
		mood = MoodCelebration
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return mood, score
}

// Mood returns the peer's current derived mood label and score, as of now
// (a unix timestamp — callers pass a consistent clock so derivation stays
// deterministic across repeated calls against the same record).
func (p *Peer) Mood(now uint64) (Mood, float64) {
	return p.deriveMood(now)
}
