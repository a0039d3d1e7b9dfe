package s3

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/mirrorkeep/mirrorkeep/hashing"
	"github.com/mirrorkeep/mirrorkeep/mirror"
)

// S3Mirror keeps the mirror in an S3-compatible object store. There is
// no remote compute, so digest recomputation pulls the bytes back and
// hashes them here, which doubles as a retrievability check.
type S3Mirror struct {
	location    string
	minioClient *minio.Client
	bucketName  string
	prefix      string
}

func init() {
	mirror.Register("s3", NewS3Mirror)
}

func NewS3Mirror(location string) (mirror.Channel, error) {
	parsed, err := url.Parse(location)
	if err != nil {
		return nil, err
	}

	endpoint := parsed.Host
	accessKeyID := parsed.User.Username()
	secretAccessKey, _ := parsed.User.Password()
	useSSL := parsed.Query().Get("insecure") == ""

	minioClient, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}

	atoms := strings.SplitN(strings.Trim(parsed.Path, "/"), "/", 2)
	if atoms[0] == "" {
		return nil, fmt.Errorf("s3 mirror needs a bucket name")
	}
	m := &S3Mirror{
		location:    location,
		minioClient: minioClient,
		bucketName:  atoms[0],
	}
	if len(atoms) == 2 {
		m.prefix = atoms[1] + "/"
	}

	exists, err := minioClient.BucketExists(context.Background(), m.bucketName)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", m.bucketName)
	}
	return m, nil
}

func (m *S3Mirror) Location() string {
	return m.location
}

func (m *S3Mirror) key(pathname string) string {
	return m.prefix + pathname
}

func (m *S3Mirror) List() ([]mirror.FileInfo, error) {
	var out []mirror.FileInfo
	for object := range m.minioClient.ListObjects(context.Background(), m.bucketName, minio.ListObjectsOptions{Prefix: m.prefix, Recursive: true}) {
		if object.Err != nil {
			return nil, object.Err
		}
		out = append(out, mirror.FileInfo{
			Path: strings.TrimPrefix(object.Key, m.prefix),
			Size: object.Size,
		})
	}
	return out, nil
}

func (m *S3Mirror) Exists(pathname string) (bool, error) {
	_, err := m.minioClient.StatObject(context.Background(), m.bucketName, m.key(pathname), minio.StatObjectOptions{})
	if err != nil {
		errResponse := minio.ToErrorResponse(err)
		if errResponse.Code == "NoSuchKey" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Put relies on the store's multipart upload for staging: an object
// only becomes visible at its key once the upload completed.
func (m *S3Mirror) Put(pathname string, rd io.Reader, size int64) error {
	exists, err := m.Exists(pathname)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("refusing to overwrite %s", pathname)
	}
	_, err = m.minioClient.PutObject(context.Background(), m.bucketName, m.key(pathname), rd, size, minio.PutObjectOptions{})
	return err
}

func (m *S3Mirror) Fetch(pathname string) (io.ReadCloser, error) {
	object, err := m.minioClient.GetObject(context.Background(), m.bucketName, m.key(pathname), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	return object, nil
}

func (m *S3Mirror) Digests(algorithm string, pathnames []string) (map[string]string, error) {
	out := make(map[string]string, len(pathnames))
	for _, pathname := range pathnames {
		rd, err := m.Fetch(pathname)
		if err != nil {
			continue
		}
		digest, err := hashing.HashReader(algorithm, rd)
		rd.Close()
		if err != nil {
			continue
		}
		out[pathname] = digest
	}
	return out, nil
}

func (m *S3Mirror) Protect(pathname string) error {
	hold := minio.LegalHoldEnabled
	return m.minioClient.PutObjectLegalHold(context.Background(), m.bucketName, m.key(pathname), minio.PutObjectLegalHoldOptions{
		Status: &hold,
	})
}

// Capacity is not a concept object stores expose; callers fall back to
// reporting it as unsupported.
func (m *S3Mirror) Capacity() (int, bool, error) {
	return 0, false, nil
}

func (m *S3Mirror) Close() error {
	return nil
}
