// internal/service/campaign_service.go
package service

import (
    "fmt"
    "time"

    "github.com/rs/zerolog"

    "github.com/bulkwave/campaign-engine/internal/model"
    "github.com/bulkwave/campaign-engine/internal/queue"
    "github.com/bulkwave/campaign-engine/internal/repository"
)

type CampaignService struct {
    CampaignRepo repository.CampaignRepositoryInterface
    QueueRepo    repository.QueueItemRepositoryInterface
    Queue        queue.Publisher
    Log          zerolog.Logger
}

// Result struct for Dispatch
type DispatchResult struct {
    CampaignID  int64 `json:"campaign_id"`
    ItemsQueued int   `json:"items_queued"`
    Status      string `json:"status"`
}

type CampaignDetails struct {
    ID             int64          `json:"id"`
    Name           string         `json:"name"`
    Channel        string         `json:"channel"`
    Status         string         `json:"status"`
    TemplateName   string         `json:"template_name"`
    SentCount      int            `json:"sent_count"`
    FailedCount    int            `json:"failed_count"`
    DeliveredCount int            `json:"delivered_count"`
    ReadCount      int            `json:"read_count"`
    CreatedAt      time.Time      `json:"created_at"`
    UpdatedAt      *time.Time     `json:"updated_at"`
    QueueStats     map[string]int `json:"queue_stats"`
}

func (s *CampaignService) CreateCampaign(name, channel, templateName string) (*model.Campaign, error) {
    if name == "" {
        return nil, fmt.Errorf("campaign name cannot be empty")
    }
    if templateName == "" {
        return nil, fmt.Errorf("template name cannot be empty")
    }

    c := &model.Campaign{
        Name:         name,
        Channel:      channel,
        TemplateName: templateName,
        Status:       model.StatusDraft,
    }
    if err := s.CampaignRepo.Create(c); err != nil {
        return nil, err
    }
    return c, nil
}

// Dispatch enqueues one pending queue item per recipient and moves the
// campaign to running so the worker starts claiming them. The wake-up
// publish is best-effort: the worker's poll cadence picks the items up
// regardless.
func (s *CampaignService) Dispatch(campaignID int64, recipients []string) (*DispatchResult, error) {
    campaign, err := s.CampaignRepo.GetByID(campaignID)
    if err != nil {
        return nil, err
    }
    if campaign.Status == model.StatusCompleted {
        return nil, fmt.Errorf("campaign cannot be dispatched in status: %s", campaign.Status)
    }
    if len(recipients) == 0 {
        return nil, fmt.Errorf("no recipients given")
    }

    queued, err := s.QueueRepo.Enqueue(campaignID, recipients)
    if err != nil {
        return nil, err
    }

    if campaign.Status != model.StatusRunning {
        if err := s.CampaignRepo.UpdateStatus(campaignID, model.StatusRunning); err != nil {
            return nil, err
        }
    }

    if err := s.Queue.DispatchQueued(campaignID); err != nil {
        s.Log.Warn().Err(err).Int64("campaign_id", campaignID).Msg("publishing dispatch wakeup failed")
    }

    return &DispatchResult{
        CampaignID:  campaignID,
        ItemsQueued: queued,
        Status:      model.StatusRunning,
    }, nil
}

// Pause stops further claiming without touching the remaining pending
// items; Resume picks them back up.
func (s *CampaignService) Pause(campaignID int64) error {
    campaign, err := s.CampaignRepo.GetByID(campaignID)
    if err != nil {
        return err
    }
    if campaign.Status != model.StatusRunning {
        return fmt.Errorf("campaign cannot be paused in status: %s", campaign.Status)
    }
    return s.CampaignRepo.UpdateStatus(campaignID, model.StatusPaused)
}

func (s *CampaignService) Resume(campaignID int64) error {
    campaign, err := s.CampaignRepo.GetByID(campaignID)
    if err != nil {
        return err
    }
    if campaign.Status != model.StatusPaused {
        return fmt.Errorf("campaign cannot be resumed in status: %s", campaign.Status)
    }
    if err := s.CampaignRepo.UpdateStatus(campaignID, model.StatusRunning); err != nil {
        return err
    }
    if err := s.Queue.DispatchQueued(campaignID); err != nil {
        s.Log.Warn().Err(err).Int64("campaign_id", campaignID).Msg("publishing dispatch wakeup failed")
    }
    return nil
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(page, pageSize int, channel, status string) ([]model.Campaign, map[string]int, error) {
    if page < 1 {
        page = 1
    }
    if pageSize < 1 {
        pageSize = 20
    }
    if pageSize > 100 {
        pageSize = 100
    }
    offset := (page - 1) * pageSize

    ptrs, total, err := s.CampaignRepo.ListCampaigns(offset, pageSize, channel, status)
    if err != nil {
        return nil, nil, err
    }

    campaigns := make([]model.Campaign, len(ptrs))
    for i, c := range ptrs {
        campaigns[i] = *c
    }

    totalPages := (total + pageSize - 1) / pageSize
    pagination := map[string]int{
        "page":        page,
        "page_size":   pageSize,
        "total_count": total,
        "total_pages": totalPages,
    }

    return campaigns, pagination, nil
}

func (s *CampaignService) GetCampaignDetailsWithStats(campaignID int64) (*CampaignDetails, error) {
    campaign, err := s.CampaignRepo.GetByID(campaignID)
    if err != nil {
        return nil, err
    }

    stats, err := s.QueueRepo.CountByStatus(campaignID)
    if err != nil {
        return nil, err
    }

    return &CampaignDetails{
        ID:             campaign.ID,
        Name:           campaign.Name,
        Channel:        campaign.Channel,
        Status:         campaign.Status,
        TemplateName:   campaign.TemplateName,
        SentCount:      campaign.SentCount,
        FailedCount:    campaign.FailedCount,
        DeliveredCount: campaign.DeliveredCount,
        ReadCount:      campaign.ReadCount,
        CreatedAt:      campaign.CreatedAt,
        UpdatedAt:      campaign.UpdatedAt,
        QueueStats:     stats,
    }, nil
}
