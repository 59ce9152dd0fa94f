// internal/controller/campaign_controller.go
package controller

import (
    "encoding/json"
    "errors"
    "net/http"
    "strconv"

    "github.com/go-chi/chi/v5"

    appErrors "github.com/bulkwave/campaign-engine/internal/errors"
    "github.com/bulkwave/campaign-engine/internal/service"
)

type CampaignController struct {
    CampaignService *service.CampaignService
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
    var body struct {
        Name         string `json:"name"`
        Channel      string `json:"channel"`
        TemplateName string `json:"template_name"`
    }
    if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
        http.Error(w, "invalid body", http.StatusBadRequest)
        return
    }

    campaign, err := c.CampaignService.CreateCampaign(body.Name, body.Channel, body.TemplateName)
    if err != nil {
        http.Error(w, err.Error(), http.StatusBadRequest)
        return
    }

    w.WriteHeader(http.StatusCreated)
    json.NewEncoder(w).Encode(campaign)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
    page, _ := strconv.Atoi(r.URL.Query().Get("page"))
    pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
    channel := r.URL.Query().Get("channel")
    status := r.URL.Query().Get("status")

    if page < 1 {
        page = 1
    }
    if pageSize < 1 {
        pageSize = 20
    }

    campaigns, pagination, err := c.CampaignService.ListCampaigns(page, pageSize, channel, status)
    if err != nil {
        http.Error(w, err.Error(), http.StatusInternalServerError)
        return
    }

    json.NewEncoder(w).Encode(map[string]interface{}{
        "data":       campaigns,
        "pagination": pagination,
    })
}

func (c *CampaignController) GetCampaign(w http.ResponseWriter, r *http.Request) {
    id, err := campaignID(r)
    if err != nil {
        http.Error(w, "invalid campaign id", http.StatusBadRequest)
        return
    }

    details, err := c.CampaignService.GetCampaignDetailsWithStats(id)
    if err != nil {
        writeServiceError(w, err)
        return
    }

    json.NewEncoder(w).Encode(details)
}

// DispatchCampaign is the enqueue path: it inserts pending queue items
// for the given recipients and moves the campaign to running.
func (c *CampaignController) DispatchCampaign(w http.ResponseWriter, r *http.Request) {
    id, err := campaignID(r)
    if err != nil {
        http.Error(w, "invalid campaign id", http.StatusBadRequest)
        return
    }

    var body struct {
        Recipients []string `json:"recipients"`
    }
    if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
        http.Error(w, "invalid body", http.StatusBadRequest)
        return
    }

    result, err := c.CampaignService.Dispatch(id, body.Recipients)
    if err != nil {
        writeServiceError(w, err)
        return
    }

    json.NewEncoder(w).Encode(result)
}

func (c *CampaignController) PauseCampaign(w http.ResponseWriter, r *http.Request) {
    id, err := campaignID(r)
    if err != nil {
        http.Error(w, "invalid campaign id", http.StatusBadRequest)
        return
    }

    if err := c.CampaignService.Pause(id); err != nil {
        writeServiceError(w, err)
        return
    }

    json.NewEncoder(w).Encode(map[string]interface{}{"campaign_id": id, "status": "paused"})
}

func (c *CampaignController) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
    id, err := campaignID(r)
    if err != nil {
        http.Error(w, "invalid campaign id", http.StatusBadRequest)
        return
    }

    if err := c.CampaignService.Resume(id); err != nil {
        writeServiceError(w, err)
        return
    }

    json.NewEncoder(w).Encode(map[string]interface{}{"campaign_id": id, "status": "running"})
}

func campaignID(r *http.Request) (int64, error) {
    return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func writeServiceError(w http.ResponseWriter, err error) {
    var notFound *appErrors.ErrCampaignNotFound
    if errors.As(err, &notFound) {
        http.Error(w, err.Error(), http.StatusNotFound)
        return
    }
    http.Error(w, err.Error(), http.StatusBadRequest)
}
