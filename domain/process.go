package domain

type PID int32
type PidStatus string

const (
	RUNNING PidStatus = "RUNNING"
	SLEEP   PidStatus = "SLEEP"
	STOP    PidStatus = "STOP"
	IDLE    PidStatus = "IDLE"
	ZOMBIE  PidStatus = "ZOMBIE"
	WAIT    PidStatus = "WAIT"
	LOCK    PidStatus = "LOCK"
	UNKNOWN PidStatus = "UNKNOWN"
)

// ToStatus maps the single letter process state reported by the OS.
func ToStatus(status string) PidStatus {
	switch status {
	case "R":
		return RUNNING
	case "S":
		return SLEEP
	case "T":
		return STOP
	case "I":
		return IDLE
	case "Z":
		return ZOMBIE
	case "W":
		return WAIT
	case "L":
		return LOCK
	default:
		return UNKNOWN
	}
}

// ProcessStats is the resource usage of the relay process itself.
type ProcessStats struct {
	PID        PID       `json:"pid"`
	Status     PidStatus `json:"status"`
	RSSBytes   uint64    `json:"rss_bytes"`
	CPUPercent float64   `json:"cpu_percent"`
}

// RelayStats is the payload of the stats endpoint.
type RelayStats struct {
	Rooms       int           `json:"rooms"`
	Connections int           `json:"connections"`
	RoomMembers []RoomStats   `json:"room_members"`
	Process     *ProcessStats `json:"process,omitempty"`
}
