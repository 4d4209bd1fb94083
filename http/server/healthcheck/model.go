package healthcheck

import "time"

type (
	HealthCheck struct {
		PingTime time.Time `json:"pingTime"`
		Error    string    `json:"error,omitempty"`
	}
)

func NewHealthCheck(pingTime time.Time, err error) *HealthCheck {
	hc := &HealthCheck{PingTime: pingTime}
	if err != nil {
		hc.Error = err.Error()
	}
	return hc
}
