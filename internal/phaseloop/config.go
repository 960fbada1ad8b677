package phaseloop

import "time"

// DefaultGenres is the mock-mode genre set (spec §8 scenario 1).
var DefaultGenres = []string{
	"Cyberpunk Noir",
	"Medieval Fantasy",
	"Space Opera",
	"Steampunk Adventure",
	"Post-Apocalyptic",
}

// Config holds the loop's tunables (spec §6 CLI / environment: "mock-mode
// flags", "presentation/cleanup/voting durations", "proposal ... timeouts").
type Config struct {
	// Genres generation. LLMProvider == "" runs mock mode: Genres (or
	// DefaultGenres if empty) is used verbatim.
	Genres      []string
	LLMProvider string
	LLMTimeout  time.Duration

	VotingDuration  time.Duration
	ProposalTimeout time.Duration

	// PresentationMode selects which audio channels are assembled: "story"
	// (narration/music/ambient only), "commentary" (commentary only), or
	// "mixed" (both) (spec §4.L step 6).
	PresentationMode       string
	PresentationDurationMs int
	BufferMs               int
	MinimumWaitMs          int

	CleanupCountdown time.Duration
	MCPTimeout       time.Duration
	AudioTimeout     time.Duration
}

// DefaultConfig returns the loop's defaults when the operator supplies no
// overrides.
func DefaultConfig() Config {
	return Config{
		Genres:                 DefaultGenres,
		VotingDuration:         2 * time.Minute,
		ProposalTimeout:        30 * time.Second,
		PresentationMode:       "mixed",
		PresentationDurationMs: 0,
		BufferMs:               2000,
		MinimumWaitMs:          5000,
		CleanupCountdown:       5 * time.Second,
		MCPTimeout:             15 * time.Second,
		AudioTimeout:           12 * time.Second,
	}
}
