package repository

import (
    "context"
    "database/sql"
    "fmt"
    "time"

    appErrors "github.com/bulkwave/campaign-engine/internal/errors"
    "github.com/bulkwave/campaign-engine/internal/model"
)

// CounterDeltas is one campaign's aggregate increments, accumulated in
// memory during a dispatch cycle and flushed with a single UPDATE.
type CounterDeltas struct {
    Sent      int
    Failed    int
    Delivered int
    Read      int
}

func (d CounterDeltas) IsZero() bool {
    return d.Sent == 0 && d.Failed == 0 && d.Delivered == 0 && d.Read == 0
}

type CampaignRepositoryInterface interface {
    Create(c *model.Campaign) error
    GetByID(id int64) (*model.Campaign, error)
    ListCampaigns(offset, limit int, channel, status string) ([]*model.Campaign, int, error)
    UpdateStatus(campaignID int64, status string) error
    ApplyCounterDeltas(ctx context.Context, campaignID int64, d CounterDeltas) error
}

type CampaignRepository struct {
    DB *sql.DB
}

func (r *CampaignRepository) Create(c *model.Campaign) error {
    c.CreatedAt = time.Now()
    if c.Status == "" {
        c.Status = model.StatusDraft
    }
    query := `
        INSERT INTO campaigns (name, channel, status, template_name, created_at)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id
    `
    return r.DB.QueryRow(query, c.Name, c.Channel, c.Status, c.TemplateName, c.CreatedAt).Scan(&c.ID)
}

func (r *CampaignRepository) GetByID(id int64) (*model.Campaign, error) {
    query := `
        SELECT id, name, channel, status, template_name,
               sent_count, failed_count, delivered_count, read_count,
               created_at, updated_at
        FROM campaigns WHERE id=$1
    `
    var c model.Campaign
    err := r.DB.QueryRow(query, id).Scan(
        &c.ID, &c.Name, &c.Channel, &c.Status, &c.TemplateName,
        &c.SentCount, &c.FailedCount, &c.DeliveredCount, &c.ReadCount,
        &c.CreatedAt, &c.UpdatedAt,
    )
    if err != nil {
        if err == sql.ErrNoRows {
            return nil, appErrors.NewCampaignNotFound(id)
        }
        return nil, err
    }
    return &c, nil
}

func (r *CampaignRepository) ListCampaigns(offset, limit int, channel, status string) ([]*model.Campaign, int, error) {
    campaigns := []*model.Campaign{}
    query := `
        SELECT id, name, channel, status, template_name,
               sent_count, failed_count, delivered_count, read_count,
               created_at, updated_at
        FROM campaigns WHERE 1=1`
    args := []interface{}{}
    argPos := 1

    if channel != "" {
        query += fmt.Sprintf(" AND channel=$%d", argPos)
        args = append(args, channel)
        argPos++
    }
    if status != "" {
        query += fmt.Sprintf(" AND status=$%d", argPos)
        args = append(args, status)
        argPos++
    }

    query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
    args = append(args, limit, offset)

    rows, err := r.DB.Query(query, args...)
    if err != nil {
        return nil, 0, err
    }
    defer rows.Close()

    for rows.Next() {
        c := &model.Campaign{}
        if err := rows.Scan(
            &c.ID, &c.Name, &c.Channel, &c.Status, &c.TemplateName,
            &c.SentCount, &c.FailedCount, &c.DeliveredCount, &c.ReadCount,
            &c.CreatedAt, &c.UpdatedAt,
        ); err != nil {
            return nil, 0, err
        }
        campaigns = append(campaigns, c)
    }

    countQuery := `SELECT COUNT(*) FROM campaigns WHERE 1=1`
    argsCount := []interface{}{}
    argPosCount := 1
    if channel != "" {
        countQuery += fmt.Sprintf(" AND channel=$%d", argPosCount)
        argsCount = append(argsCount, channel)
        argPosCount++
    }
    if status != "" {
        countQuery += fmt.Sprintf(" AND status=$%d", argPosCount)
        argsCount = append(argsCount, status)
    }

    var total int
    if err := r.DB.QueryRow(countQuery, argsCount...).Scan(&total); err != nil {
        return nil, 0, err
    }

    return campaigns, total, nil
}

func (r *CampaignRepository) UpdateStatus(campaignID int64, status string) error {
    query := `UPDATE campaigns SET status=$1, updated_at=$2 WHERE id=$3`
    _, err := r.DB.Exec(query, status, time.Now(), campaignID)
    return err
}

// ApplyCounterDeltas applies aggregate increments atomically at the
// storage layer (count = count + n), so concurrent dispatch cycles and
// webhook events never lose increments to read-modify-write races.
func (r *CampaignRepository) ApplyCounterDeltas(ctx context.Context, campaignID int64, d CounterDeltas) error {
    if d.IsZero() {
        return nil
    }
    query := `
        UPDATE campaigns
        SET sent_count      = sent_count + $1,
            failed_count    = failed_count + $2,
            delivered_count = delivered_count + $3,
            read_count      = read_count + $4,
            updated_at      = NOW()
        WHERE id = $5
    `
    _, err := r.DB.ExecContext(ctx, query, d.Sent, d.Failed, d.Delivered, d.Read, campaignID)
    return err
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
