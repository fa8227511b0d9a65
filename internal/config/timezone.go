package config

import "time"

// Taiwan is the timezone for every user-facing date and for reminder
// scheduling. Falls back to a fixed offset when the host has no tzdata.
var Taiwan = loadTaiwan()

func loadTaiwan() *time.Location {
	loc, err := time.LoadLocation("Asia/Taipei")
	if err != nil {
		return time.FixedZone("CST", 8*60*60)
	}
	return loc
}
