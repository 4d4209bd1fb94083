package orderapi

import "time"

type (
	SubmitRequest struct {
		ID string `json:"id" validate:"max=128"`
	}

	SubmitResponse struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}

	RecentResponse struct {
		Orders []string `json:"orders"`
	}

	ProcessedOrder struct {
		ID          string    `json:"id"`
		ProcessedAt time.Time `json:"processedAt"`
	}

	ProcessedResponse struct {
		Orders []ProcessedOrder `json:"orders"`
	}

	QueueResponse struct {
		Pending int `json:"pending"`
	}

	ErrorResponse struct {
		Error string `json:"error"`
	}
)
