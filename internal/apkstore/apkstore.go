// Package apkstore locates the Android app package offered on the
// launcher page. Builds land either in a local directory or in an S3
// bucket; the store picks the newest one and caches S3 downloads on
// disk so repeat requests don't refetch.
package apkstore

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/halvard-dev/storefront/internal/log"
	"github.com/halvard-dev/storefront/internal/xerrors"
)

const (
	SourceLocal = "local"
	SourceS3    = "s3"
)

var ErrNoAPK = xerrors.New("apkstore: no apk available")

// APK describes a resolved package file ready to serve from disk.
type APK struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
	Source  string
}

type Options struct {
	Logger log.Logger

	// Dir is the local directory scanned for *.apk files.
	Dir string

	// S3 location for published builds: s3://{bucket}/{prefix}/{name}.apk
	// Optional; when unset only the local directory is used.
	S3Bucket string
	S3Prefix string

	// CacheDir holds downloaded S3 objects. Defaults to Dir.
	CacheDir string

	// AWS config (uses default if nil)
	AWSConfig *aws.Config
}

type Store struct {
	opts     Options
	s3Client *s3.Client
	logger   log.Logger

	mu     sync.Mutex
	cached map[string]string // s3 key -> local path
}

func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Dir == "" {
		return nil, xerrors.New("apkstore: Dir is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.CacheDir == "" {
		opts.CacheDir = opts.Dir
	}

	s := &Store{
		opts:   opts,
		logger: opts.Logger,
		cached: make(map[string]string),
	}

	if opts.S3Bucket != "" {
		var awsCfg aws.Config
		var err error
		if opts.AWSConfig != nil {
			awsCfg = *opts.AWSConfig
		} else {
			awsCfg, err = config.LoadDefaultConfig(ctx)
			if err != nil {
				return nil, xerrors.Wrap(err, "load AWS config")
			}
		}
		s.s3Client = s3.NewFromConfig(awsCfg)
	}

	return s, nil
}

// Latest resolves the newest available APK, preferring S3 when it is
// configured and reachable, falling back to the local directory.
func (s *Store) Latest(ctx context.Context) (APK, error) {
	if s.s3Client != nil {
		apk, err := s.latestS3(ctx)
		if err == nil {
			return apk, nil
		}
		if !errors.Is(err, ErrNoAPK) {
			s.logger.Warn(ctx, "s3 apk lookup failed, trying local directory", "error", err.Error())
		}
	}
	return s.latestLocal()
}

func (s *Store) latestLocal() (APK, error) {
	entries, err := os.ReadDir(s.opts.Dir)
	if err != nil {
		return APK{}, xerrors.Wrapf(err, "read apk dir %s", s.opts.Dir)
	}

	var best APK
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".apk") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if best.Name == "" || info.ModTime().After(best.ModTime) {
			best = APK{
				Path:    filepath.Join(s.opts.Dir, e.Name()),
				Name:    e.Name(),
				Size:    info.Size(),
				ModTime: info.ModTime(),
				Source:  SourceLocal,
			}
		}
	}
	if best.Name == "" {
		return APK{}, ErrNoAPK
	}
	return best, nil
}

func (s *Store) latestS3(ctx context.Context) (APK, error) {
	in := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.opts.S3Bucket),
	}
	if s.opts.S3Prefix != "" {
		in.Prefix = aws.String(s.opts.S3Prefix)
	}

	out, err := s.s3Client.ListObjectsV2(ctx, in)
	if err != nil {
		return APK{}, xerrors.Wrapf(err, "list s3://%s/%s", s.opts.S3Bucket, s.opts.S3Prefix)
	}

	var bestKey string
	var bestTime time.Time
	var bestSize int64
	for _, obj := range out.Contents {
		key := aws.ToString(obj.Key)
		if !strings.HasSuffix(strings.ToLower(key), ".apk") {
			continue
		}
		mod := aws.ToTime(obj.LastModified)
		if bestKey == "" || mod.After(bestTime) {
			bestKey = key
			bestTime = mod
			bestSize = aws.ToInt64(obj.Size)
		}
	}
	if bestKey == "" {
		return APK{}, ErrNoAPK
	}

	path, err := s.download(ctx, bestKey)
	if err != nil {
		return APK{}, err
	}
	return APK{
		Path:    path,
		Name:    filepath.Base(bestKey),
		Size:    bestSize,
		ModTime: bestTime,
		Source:  SourceS3,
	}, nil
}

// download fetches an S3 object into the cache dir once per key.
func (s *Store) download(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	if path, ok := s.cached[key]; ok {
		s.mu.Unlock()
		return path, nil
	}
	s.mu.Unlock()

	out, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get s3://%s/%s", s.opts.S3Bucket, key)
	}
	defer out.Body.Close()

	if err := os.MkdirAll(s.opts.CacheDir, 0o755); err != nil {
		return "", xerrors.Wrap(err, "create apk cache dir")
	}

	tmp, err := os.CreateTemp(s.opts.CacheDir, "apk-download-*")
	if err != nil {
		return "", xerrors.Wrap(err, "create apk temp file")
	}
	tmpPath := tmp.Name()

	written, err := io.Copy(tmp, out.Body)
	tmp.Close()
	if err != nil {
		os.Remove(tmpPath)
		return "", xerrors.Wrap(err, "download apk")
	}

	final := filepath.Join(s.opts.CacheDir, filepath.Base(key))
	if err := os.Rename(tmpPath, final); err != nil {
		os.Remove(tmpPath)
		return "", xerrors.Wrap(err, "place apk in cache")
	}

	s.logger.Info(ctx, "cached apk from s3",
		"key", key,
		"bytes", written,
		"path", final,
	)

	s.mu.Lock()
	s.cached[key] = final
	s.mu.Unlock()
	return final, nil
}
