package agents

// Behavior traits the oracle may assign. These are the only traits the
// validator accepts from generated attributes.
const (
	TraitCurious    = "curious"
	TraitSocial     = "social"
	TraitCreative   = "creative"
	TraitEnergetic  = "energetic"
	TraitCalm       = "calm"
	TraitMysterious = "mysterious"
	TraitProtective = "protective"
	TraitPlayful    = "playful"
)

// Ecological traits. They are never produced by the oracle but may be granted
// by manual updates, and they gate harvesting and contribution abilities.
const (
	TraitEfficient   = "efficient"
	TraitGentle      = "gentle"
	TraitGreedy      = "greedy"
	TraitStrong      = "strong"
	TraitForager     = "forager"
	TraitNurturing   = "nurturing"
	TraitCaretaker   = "caretaker"
	TraitPure        = "pure"
	TraitClean       = "clean"
	TraitGrowth      = "growth"
	TraitFertile     = "fertile"
	TraitGuardian    = "guardian"
	TraitDedicated   = "dedicated"
	TraitLazy        = "lazy"
	TraitUnderground = "underground"
)

// BehaviorTraits is the fixed vocabulary accepted from the oracle.
var BehaviorTraits = []string{
	TraitCurious, TraitSocial, TraitCreative, TraitEnergetic,
	TraitCalm, TraitMysterious, TraitProtective, TraitPlayful,
}

// Features is the fixed vocabulary of cosmetic features.
var Features = []string{
	"glowing_eyes", "crystal_spikes", "energy_aura", "particle_trail",
	"geometric_pattern", "flowing_tendrils", "rotating_symbols",
}
