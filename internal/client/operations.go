package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/edvin/zargar/internal/core"
	"github.com/edvin/zargar/internal/model"
)

func (c *Client) CreateBackup(ctx context.Context, name, backupType, tenantSchema string) (*model.BackupJob, error) {
	body := map[string]string{"name": name, "type": backupType}
	if tenantSchema != "" {
		body["tenant_schema"] = tenantSchema
	}
	resp, err := c.Post(ctx, "/api/v1/backups", body)
	if err != nil {
		return nil, err
	}
	var job model.BackupJob
	return &job, resp.Decode(&job)
}

func (c *Client) ListBackups(ctx context.Context, limit int) ([]model.BackupJob, error) {
	path := "/api/v1/backups"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var jobs []model.BackupJob
	return jobs, c.list(ctx, path, &jobs)
}

func (c *Client) GetBackup(ctx context.Context, id string) (*model.BackupJob, error) {
	resp, err := c.Get(ctx, "/api/v1/backups/"+escape(id))
	if err != nil {
		return nil, err
	}
	var job model.BackupJob
	return &job, resp.Decode(&job)
}

func (c *Client) CancelBackup(ctx context.Context, id string) (*model.BackupJob, error) {
	resp, err := c.Post(ctx, "/api/v1/backups/"+escape(id)+"/cancel", nil)
	if err != nil {
		return nil, err
	}
	var job model.BackupJob
	return &job, resp.Decode(&job)
}

// CreateSnapshot takes a snapshot of schema. A pre_operation snapshot blocks
// until the dump is stored or an existing recent one is returned.
func (c *Client) CreateSnapshot(ctx context.Context, schema, snapshotType, description string) (*core.SnapshotOutcome, error) {
	resp, err := c.Post(ctx, "/api/v1/tenants/"+escape(schema)+"/snapshots", map[string]string{
		"type":        snapshotType,
		"description": description,
	})
	if err != nil {
		return nil, err
	}
	var out core.SnapshotOutcome
	return &out, resp.Decode(&out)
}

func (c *Client) ListSnapshots(ctx context.Context, tenantSchema string) ([]model.TenantSnapshot, error) {
	path := "/api/v1/snapshots"
	if tenantSchema != "" {
		path += "?tenant=" + url.QueryEscape(tenantSchema)
	}
	var snapshots []model.TenantSnapshot
	return snapshots, c.list(ctx, path, &snapshots)
}

func (c *Client) RestoreTenant(ctx context.Context, schema, backupID, confirmationText string) (*core.RestoreOutcome, error) {
	resp, err := c.Post(ctx, "/api/v1/tenants/"+escape(schema)+"/restore", map[string]string{
		"backup_id":         backupID,
		"confirmation_text": confirmationText,
	})
	if err != nil {
		return nil, err
	}
	var out core.RestoreOutcome
	return &out, resp.Decode(&out)
}

func (c *Client) RestoreSnapshot(ctx context.Context, snapshotID string) (*core.RestoreOutcome, error) {
	resp, err := c.Post(ctx, "/api/v1/snapshots/"+escape(snapshotID)+"/restore", nil)
	if err != nil {
		return nil, err
	}
	var out core.RestoreOutcome
	return &out, resp.Decode(&out)
}

func (c *Client) RestoreStatus(ctx context.Context, restoreJobID string) (*core.RestoreStatus, error) {
	resp, err := c.Get(ctx, "/api/v1/restores/"+escape(restoreJobID))
	if err != nil {
		return nil, err
	}
	var status core.RestoreStatus
	return &status, resp.Decode(&status)
}

func (c *Client) CancelRestore(ctx context.Context, restoreJobID string) (*core.RestoreOutcome, error) {
	resp, err := c.Post(ctx, "/api/v1/restores/"+escape(restoreJobID)+"/cancel", nil)
	if err != nil {
		return nil, err
	}
	var out core.RestoreOutcome
	return &out, resp.Decode(&out)
}

func (c *Client) list(ctx context.Context, path string, v any) error {
	resp, err := c.Get(ctx, path)
	if err != nil {
		return err
	}
	items, err := resp.Items()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(items, v); err != nil {
		return fmt.Errorf("parse items: %w", err)
	}
	return nil
}
