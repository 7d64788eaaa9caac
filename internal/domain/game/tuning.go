package game

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning holds every simulation constant. Durations are simulated
// milliseconds, distances are tiles.
type Tuning struct {
	TickDuration        int64 `yaml:"tick_duration_ms"`
	StepDuration        int64 `yaml:"step_duration_ms"`
	MaxTicksPerStep     int   `yaml:"max_ticks_per_step"`
	MaxInputsPerStep    int   `yaml:"max_inputs_per_step"`
	PreemptionThreshold int64 `yaml:"preemption_threshold_ms"`
	MaxIdleDuration     int64 `yaml:"max_idle_duration_ms"`

	CollisionThreshold  float64 `yaml:"collision_threshold"`
	MovementSpeed       float64 `yaml:"movement_speed"`
	PathfindingTimeout  int64   `yaml:"pathfinding_timeout_ms"`
	PathfindingBackoff  int64   `yaml:"pathfinding_backoff_ms"`
	MaxPathfindsPerStep int     `yaml:"max_pathfinds_per_step"`

	ConversationDistance       float64 `yaml:"conversation_distance"`
	MidpointThreshold          float64 `yaml:"midpoint_threshold"`
	TypingTimeout              int64   `yaml:"typing_timeout_ms"`
	InviteTimeout              int64   `yaml:"invite_timeout_ms"`
	InviteAcceptProbability    float64 `yaml:"invite_accept_probability"`
	ConversationCooldown       int64   `yaml:"conversation_cooldown_ms"`
	PlayerConversationCooldown int64   `yaml:"player_conversation_cooldown_ms"`
	AwkwardConversationTimeout int64   `yaml:"awkward_conversation_timeout_ms"`
	MaxConversationDuration    int64   `yaml:"max_conversation_duration_ms"`
	MaxConversationMessages    int     `yaml:"max_conversation_messages"`
	ConversationGrace          int64   `yaml:"conversation_grace_ms"`
	MessageCooldown            int64   `yaml:"message_cooldown_ms"`

	ActionTimeout       int64 `yaml:"action_timeout_ms"`
	HumanIdleTooLong    int64 `yaml:"human_idle_too_long_ms"`
	MaxHumanPlayers     int   `yaml:"max_human_players"`
	ReflectionThreshold int   `yaml:"reflection_threshold"`
	MemoryRecallCount   int   `yaml:"memory_recall_count"`
}

func DefaultTuning() Tuning {
	return Tuning{
		TickDuration:        16,
		StepDuration:        1000,
		MaxTicksPerStep:     600,
		MaxInputsPerStep:    32,
		PreemptionThreshold: 1000,
		MaxIdleDuration:     60_000,

		CollisionThreshold:  0.75,
		MovementSpeed:       0.75,
		PathfindingTimeout:  60_000,
		PathfindingBackoff:  1000,
		MaxPathfindsPerStep: 16,

		ConversationDistance:       1.3,
		MidpointThreshold:          4,
		TypingTimeout:              15_000,
		InviteTimeout:              60_000,
		InviteAcceptProbability:    0.8,
		ConversationCooldown:       15_000,
		PlayerConversationCooldown: 60_000,
		AwkwardConversationTimeout: 20_000,
		MaxConversationDuration:    10 * 60_000,
		MaxConversationMessages:    8,
		ConversationGrace:          20_000,
		MessageCooldown:            2000,

		ActionTimeout:       60_000,
		HumanIdleTooLong:    5 * 60_000,
		MaxHumanPlayers:     8,
		ReflectionThreshold: 30,
		MemoryRecallCount:   3,
	}
}

// LoadTuning overlays the yaml file at path on the defaults. An empty path
// returns the defaults.
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()
	if path == "" {
		return t, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, err
	}
	if err := yaml.Unmarshal(b, &t); err != nil {
		return Tuning{}, fmt.Errorf("parse tuning %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return Tuning{}, err
	}
	return t, nil
}

func (t Tuning) Validate() error {
	switch {
	case t.TickDuration <= 0:
		return fmt.Errorf("tick_duration_ms must be > 0")
	case t.StepDuration <= 0:
		return fmt.Errorf("step_duration_ms must be > 0")
	case t.MaxTicksPerStep <= 0:
		return fmt.Errorf("max_ticks_per_step must be > 0")
	case t.MaxInputsPerStep <= 0:
		return fmt.Errorf("max_inputs_per_step must be > 0")
	case t.MovementSpeed <= 0:
		return fmt.Errorf("movement_speed must be > 0")
	case t.MaxIdleDuration < t.TickDuration:
		return fmt.Errorf("max_idle_duration_ms must be >= tick_duration_ms")
	}
	return nil
}
