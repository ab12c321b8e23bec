package services

import (
	"bytes"
	stdcontext "context"
	"fmt"
	"os"
	"time"

	"github.com/alphabatem/common/context"
	"github.com/bytedance/sonic"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"

	"github.com/ghostwriter-labs/gate_api/model"
)

type archiveStore interface {
	GetUnarchivedEvents(before time.Time, limit int) ([]model.SecurityEvent, error)
	MarkEventsArchived(ids []string) error
}

// ArchiveService drains settled security events into object storage as
// NDJSON batches. Rows are marked archived only after the upload lands, so
// a failed upload is retried on the next sweep.
type ArchiveService struct {
	context.DefaultService

	store  archiveStore
	client *minio.Client

	bucketName string
	endpoint   string
	accessKey  string
	secretKey  string
	useSSL     bool
}

const ARCHIVE_SVC = "archive_svc"

const archiveBatchSize = 5000

func (svc ArchiveService) Id() string {
	return ARCHIVE_SVC
}

func (svc *ArchiveService) Configure(ctx *context.Context) error {
	svc.endpoint = os.Getenv("MINIO_ENDPOINT")
	if svc.endpoint == "" {
		svc.endpoint = "localhost:9000"
	}

	svc.accessKey = os.Getenv("MINIO_ACCESS_KEY")
	if svc.accessKey == "" {
		svc.accessKey = "admin"
	}

	svc.secretKey = os.Getenv("MINIO_SECRET_KEY")
	if svc.secretKey == "" {
		svc.secretKey = "password123"
	}

	svc.useSSL = os.Getenv("MINIO_USE_SSL") == "true"

	svc.bucketName = os.Getenv("MINIO_BUCKET_NAME")
	if svc.bucketName == "" {
		svc.bucketName = "gate-audit"
	}

	return svc.DefaultService.Configure(ctx)
}

func (svc *ArchiveService) Start() error {
	svc.store = svc.Service(POSTGRES_SVC).(*PostgresService)

	client, err := minio.New(svc.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(svc.accessKey, svc.secretKey, ""),
		Secure: svc.useSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to create MinIO client: %v", err)
	}

	svc.client = client

	if err := svc.ensureBucket(); err != nil {
		return fmt.Errorf("failed to ensure bucket exists: %v", err)
	}

	log.Printf("Archive service started with endpoint: %s", svc.endpoint)
	return nil
}

func (svc *ArchiveService) ensureBucket() error {
	ctx := stdcontext.Background()

	exists, err := svc.client.BucketExists(ctx, svc.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %v", err)
	}

	if !exists {
		err = svc.client.MakeBucket(ctx, svc.bucketName, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %v", err)
		}
		log.Printf("Created MinIO bucket: %s", svc.bucketName)
	}

	return nil
}

// ArchiveBatch uploads one batch of unarchived events older than before.
// Returns the number of rows archived.
func (svc *ArchiveService) ArchiveBatch(before time.Time) (int64, error) {
	events, err := svc.store.GetUnarchivedEvents(before, archiveBatchSize)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	payload, ids, err := encodeNDJSON(events)
	if err != nil {
		return 0, err
	}

	objectName := fmt.Sprintf("security-events/%s.ndjson", time.Now().UTC().Format("2006/01/02/150405"))

	ctx := stdcontext.Background()
	_, err = svc.client.PutObject(ctx, svc.bucketName, objectName,
		bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/x-ndjson"})
	if err != nil {
		return 0, fmt.Errorf("failed to upload archive batch: %w", err)
	}

	if err := svc.store.MarkEventsArchived(ids); err != nil {
		// Upload landed but the mark failed: the next sweep re-uploads the
		// same rows. Duplicate objects beat lost audit data.
		return 0, fmt.Errorf("failed to mark events archived: %w", err)
	}

	log.WithFields(log.Fields{"object": objectName, "events": len(events)}).
		Info("Archived security events")

	return int64(len(events)), nil
}

func encodeNDJSON(events []model.SecurityEvent) ([]byte, []string, error) {
	var buf bytes.Buffer
	ids := make([]string, 0, len(events))

	for i := range events {
		line, err := sonic.Marshal(&events[i])
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode event: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
		ids = append(ids, events[i].ID)
	}

	return buf.Bytes(), ids, nil
}
