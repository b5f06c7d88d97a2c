package pm2

// Process is one descriptor from `pm2 jlist`.
type Process struct {
	PID   int    `json:"pid"`
	Name  string `json:"name"`
	PMID  int    `json:"pm_id"`
	Monit Monit  `json:"monit"`
	Env   Env    `json:"pm2_env"`
}

type Monit struct {
	Memory int64   `json:"memory"`
	CPU    float64 `json:"cpu"`
}

type Env struct {
	Status           string `json:"status"`
	PMUptime         int64  `json:"pm_uptime"`
	RestartTime      int    `json:"restart_time"`
	UnstableRestarts int    `json:"unstable_restarts"`
	CreatedAt        int64  `json:"created_at"`
}

const StatusOnline = "online"

func (p *Process) IsOnline() bool {
	return p.Env.Status == StatusOnline
}
