// Built-in daily routines for the three agent types.
package schedule

import "time"

// Schedule type identifiers, matching agent categories.
const (
	TypeChild = iota
	TypeWorkingAdult
	TypeRetiredAdult
)

// ChildSchedule is the routine of an agent under 16.
func ChildSchedule() *Schedule {
	return mustBuild("child",
		[]Activity{
			{"home", PlaceHome, LeaveAt{Clock(8, 0), 15 * time.Minute}},
			{"school", PlaceSchool, LeaveAt{Clock(15, 15), 15 * time.Minute}},
			{"supermarket", PlaceSupermarket, Stay{45 * time.Minute, 15 * time.Minute}},
			{"recreation", PlaceRecreation, Stay{2 * time.Hour, time.Hour}},
			{"home 2", PlaceHome, LeaveAt{Clock(19, 0), time.Hour}},
		},
		[]Transition{
			{"home", "school", 1},
			{"school", "home 2", 0.5},
			{"school", "supermarket", 0.25},
			{"school", "recreation", 0.25},
			{"supermarket", "home 2", 1},
			{"recreation", "home 2", 1},
		},
	)
}

// WorkingAdultSchedule is the routine of an agent aged 16–64. It includes the
// school run for agents with children.
func WorkingAdultSchedule() *Schedule {
	return mustBuild("working adult",
		[]Activity{
			{"home", PlaceHome, LeaveAt{Clock(8, 0), 15 * time.Minute}},
			{"school", PlaceSchool, Stay{10 * time.Minute, 5 * time.Minute}},
			{"shop", PlaceShop, Stay{2 * time.Hour, time.Hour}},
			{"work", PlaceWork, LeaveAt{Clock(17, 15), 15 * time.Minute}},
			{"school 2", PlaceSchool, Stay{5 * time.Minute, time.Minute}},
			{"supermarket", PlaceSupermarket, Stay{45 * time.Minute, 15 * time.Minute}},
			{"home 2", PlaceHome, LeaveAt{Clock(19, 0), time.Hour}},
			{"recreation", PlaceRecreation, Stay{time.Hour, 30 * time.Minute}},
			{"home 3", PlaceHome, LeaveAt{Clock(23, 0), time.Hour}},
		},
		[]Transition{
			{"home", "school", 1},
			{"school", "shop", 0.1},
			{"school", "work", 0.9},
			{"shop", "work", 1},
			{"work", "supermarket", 0.15},
			{"work", "school 2", 0.6},
			{"work", "home 2", 0.25},
			{"supermarket", "home 2", 1},
			{"school 2", "supermarket", 0.5},
			{"school 2", "home 2", 0.5},
			{"home 2", "recreation", 0.1},
			{"home 2", "home 3", 0.9},
			{"recreation", "home 3", 1},
		},
	)
}

// RetiredAdultSchedule is the routine of an agent aged 65 and over.
func RetiredAdultSchedule() *Schedule {
	return mustBuild("retired adult",
		[]Activity{
			{"home", PlaceHome, LeaveAt{Clock(10, 0), time.Hour}},
			{"shop", PlaceShop, Stay{2 * time.Hour, time.Hour}},
			{"supermarket", PlaceSupermarket, Stay{45 * time.Minute, 15 * time.Minute}},
			{"recreation", PlaceRecreation, Stay{time.Hour, 30 * time.Minute}},
			{"home 2", PlaceHome, Stay{2 * time.Hour, time.Hour}},
			{"home 3", PlaceHome, LeaveAt{Clock(19, 0), time.Hour}},
		},
		[]Transition{
			{"home", "supermarket", 0.5},
			{"home", "shop", 0.5},
			{"supermarket", "home 2", 1},
			{"shop", "home 2", 1},
			{"home 2", "recreation", 0.5},
			{"home 2", "home 3", 0.5},
			{"recreation", "home 3", 1},
		},
	)
}

var builtins = [...]*Schedule{
	TypeChild:        ChildSchedule(),
	TypeWorkingAdult: WorkingAdultSchedule(),
	TypeRetiredAdult: RetiredAdultSchedule(),
}

// ForType returns the shared schedule for an agent type. Unknown types get
// the working adult routine.
func ForType(t int) *Schedule {
	if t >= 0 && t < len(builtins) {
		return builtins[t]
	}
	return builtins[TypeWorkingAdult]
}

func mustBuild(name string, activities []Activity, transitions []Transition) *Schedule {
	s, err := NewSchedule(name, activities, transitions)
	if err != nil {
		panic(err)
	}
	return s
}
