package analytics

type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) GetStatsOverview(sessionID string, startDate, endDate string) ([]DailyStat, error) {
	return s.repo.GetDailyStats(sessionID, startDate, endDate)
}

func (s *Service) GetDeliverySummary(since int64) (*DeliverySummary, error) {
	return s.repo.GetDeliverySummary(since)
}

// Overview is the org-wide dashboard payload: per-day message totals
// plus the webhook delivery success rate over the same period.
type Overview struct {
	StartDate string           `json:"start_date"`
	EndDate   string           `json:"end_date"`
	Totals    DailyStat        `json:"totals"`
	Daily     []DailyStat      `json:"daily"`
	Webhooks  *DeliverySummary `json:"webhooks"`
}

func (s *Service) GetOverview(startDate, endDate string, since int64) (*Overview, error) {
	daily, err := s.repo.GetOrgDailyTotals(startDate, endDate)
	if err != nil {
		return nil, err
	}

	summary, err := s.repo.GetDeliverySummary(since)
	if err != nil {
		return nil, err
	}

	ov := &Overview{StartDate: startDate, EndDate: endDate, Daily: daily, Webhooks: summary}
	for _, d := range daily {
		ov.Totals.Sent += d.Sent
		ov.Totals.Delivered += d.Delivered
		ov.Totals.Failed += d.Failed
		ov.Totals.Received += d.Received
	}
	return ov, nil
}
