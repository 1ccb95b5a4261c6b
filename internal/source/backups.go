package source

import (
	"context"
	"sort"
	"time"

	"github.com/Schera-ole/fleetagent/internal/hostenv"
	models "github.com/Schera-ole/fleetagent/internal/model"
)

// BackupSource summarizes the backups known to the Supervisor.
type BackupSource struct {
	lister hostenv.BackupLister
	now    func() time.Time
}

// NewBackupSource returns a source reading lister. A nil lister reports
// the whole category unavailable, as on installations without Supervisor.
func NewBackupSource(lister hostenv.BackupLister) *BackupSource {
	return &BackupSource{lister: lister, now: time.Now}
}

func (s *BackupSource) Category() models.Category {
	return models.Backups
}

type datedBackup struct {
	hostenv.Backup
	at time.Time
}

func (s *BackupSource) Sample(ctx context.Context) models.MetricSet {
	if s.lister == nil {
		return models.UnavailableSet(models.Backups, "supervisor not available")
	}
	backups, err := s.lister.Backups(ctx)
	if err != nil {
		return models.UnavailableSet(models.Backups, err.Error())
	}

	var totalSize float64
	dated := make([]datedBackup, 0, len(backups))
	for _, b := range backups {
		totalSize += b.Size
		at, err := time.Parse(time.RFC3339Nano, b.Date)
		if err != nil {
			continue
		}
		dated = append(dated, datedBackup{Backup: b, at: at.UTC()})
	}

	metrics := map[string]models.Value{
		"backup_count":         models.Int(int64(len(backups))),
		"total_backup_size_mb": models.Number(round(totalSize/mebibyte, 1)),
	}

	if len(dated) == 0 {
		none := models.Unavailable("no backups")
		metrics["last_backup_date"] = none
		metrics["last_backup_age_hours"] = none
		metrics["last_backup_age_days"] = none
		metrics["oldest_backup_date"] = none
		return models.NewMetricSet(models.Backups, metrics)
	}

	sort.Slice(dated, func(i, j int) bool { return dated[i].at.After(dated[j].at) })
	newest, oldest := dated[0], dated[len(dated)-1]
	age := s.now().Sub(newest.at)

	metrics["last_backup_date"] = models.String(newest.at.Format(time.RFC3339))
	metrics["last_backup_age_hours"] = models.Number(round(age.Hours(), 1))
	metrics["last_backup_age_days"] = models.Number(round(age.Hours()/24, 1))
	metrics["oldest_backup_date"] = models.String(oldest.at.Format(time.RFC3339))

	return models.NewMetricSet(models.Backups, metrics)
}
