package minio

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/turtacn/FoodSafety-MS-KB/internal/config"
	"github.com/turtacn/FoodSafety-MS-KB/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FoodSafety-MS-KB/pkg/errors"
	"github.com/turtacn/FoodSafety-MS-KB/pkg/types/common"
)

// MinIOAPI is the subset of the minio client the archive uses.
type MinIOAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

// ArchivedObject describes one stored artifact.
type ArchivedObject struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// Archive stores run artifacts in object storage so that pipeline outputs
// survive beyond the working directory.  Objects are keyed
// runs/<run_id>/<file name>.
type Archive struct {
	api    MinIOAPI
	bucket string
	logger logging.Logger
}

// NewArchive connects to object storage and ensures the artifact bucket
// exists.
func NewArchive(ctx context.Context, cfg config.MinIOConfig, logger logging.Logger) (*Archive, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "minio endpoint required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "minio bucket required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to create minio client")
	}

	a := &Archive{api: client, bucket: cfg.Bucket, logger: logger}
	if err := a.ensureBucket(ctx); err != nil {
		return nil, err
	}

	logger.Info("artifact archive connected",
		logging.String("endpoint", cfg.Endpoint),
		logging.String("bucket", cfg.Bucket))
	return a, nil
}

func (a *Archive) ensureBucket(ctx context.Context) error {
	exists, err := a.api.BucketExists(ctx, a.bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to check artifact bucket")
	}
	if exists {
		return nil
	}
	if err := a.api.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to create artifact bucket")
	}
	a.logger.Info("artifact bucket created", logging.String("bucket", a.bucket))
	return nil
}

// ObjectKey returns the archive key for a run artifact.
func ObjectKey(runID common.ID, fileName string) string {
	return "runs/" + string(runID) + "/" + filepath.Base(fileName)
}

// ArchiveBytes uploads in-memory artifact content under the run prefix.
func (a *Archive) ArchiveBytes(ctx context.Context, runID common.ID, name string, data []byte) (*ArchivedObject, error) {
	key := ObjectKey(runID, name)
	info, err := a.api.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentTypeFor(name),
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeArtifactWrite, "failed to archive "+key)
	}
	a.logger.Debug("artifact archived",
		logging.String("key", key),
		logging.Int64("size", info.Size))
	return &ArchivedObject{Key: key, Size: info.Size, ETag: info.ETag}, nil
}

// ArchiveFile uploads one local artifact file under the run prefix.
func (a *Archive) ArchiveFile(ctx context.Context, runID common.ID, path string) (*ArchivedObject, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeArtifactRead, "failed to read artifact "+path)
	}
	return a.ArchiveBytes(ctx, runID, path, data)
}

// ArchiveRun uploads every named local file under the run prefix.  It stops
// at the first failure so a partial archive is never mistaken for a full one.
func (a *Archive) ArchiveRun(ctx context.Context, run common.RunInfo, paths []string) ([]*ArchivedObject, error) {
	archived := make([]*ArchivedObject, 0, len(paths))
	for _, path := range paths {
		obj, err := a.ArchiveFile(ctx, run.RunID, path)
		if err != nil {
			return archived, err
		}
		archived = append(archived, obj)
	}
	a.logger.Info("run artifacts archived",
		logging.String("run_id", string(run.RunID)),
		logging.String("phase", run.Phase),
		logging.Int("objects", len(archived)))
	return archived, nil
}

// Fetch downloads one archived artifact.
func (a *Archive) Fetch(ctx context.Context, key string) ([]byte, error) {
	obj, err := a.api.GetObject(ctx, a.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeArtifactRead, "failed to fetch "+key)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, errors.New(errors.ErrCodeNotFound, "archived artifact not found: "+key)
		}
		return nil, errors.Wrap(err, errors.ErrCodeArtifactRead, "failed to read "+key)
	}
	return data, nil
}

// Exists reports whether an archived artifact is present.
func (a *Archive) Exists(ctx context.Context, key string) (bool, error) {
	_, err := a.api.StatObject(ctx, a.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, errors.Wrap(err, errors.ErrCodeArtifactRead, "failed to stat "+key)
	}
	return true, nil
}

// ListRun returns the archived artifacts of one run, sorted by key.
func (a *Archive) ListRun(ctx context.Context, runID common.ID) ([]ArchivedObject, error) {
	prefix := "runs/" + string(runID) + "/"
	var out []ArchivedObject
	for info := range a.api.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if info.Err != nil {
			return nil, errors.Wrap(info.Err, errors.ErrCodeArtifactRead, "failed to list run artifacts")
		}
		out = append(out, ArchivedObject{
			Key:          info.Key,
			Size:         info.Size,
			ETag:         info.ETag,
			LastModified: info.LastModified,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func contentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return "application/json"
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
