package main

import (
	"context"
	"fmt"
	"path"
	"time"

	"dagger/simstore/internal/dagger"
)

// bucket holds the S3-compatible credentials releases are published with.
type bucket struct {
	endpoint        *dagger.Secret
	name            *dagger.Secret
	accessKeyId     *dagger.Secret
	secretAccessKey *dagger.Secret
}

// Package archives each linux/<arch> simstore binary from BuildRelease as
// simstore_<version>_linux_<arch>.tar.gz next to a SHA256SUMS file.
func (t *Simstore) Package(
	ctx context.Context,

	// Version string of build
	version string,

	// Git commit SHA of build
	commit string,
) *dagger.Directory {
	binaries := t.BuildRelease(ctx, version, commit)

	pkg := dag.Container().
		From("alpine:3.21").
		WithDirectory("/in", binaries).
		WithWorkdir("/out")

	for _, goarch := range []string{"amd64", "arm64"} {
		archive := fmt.Sprintf("simstore_%s_linux_%s.tar.gz", version, goarch)
		pkg = pkg.WithExec([]string{
			"tar", "-czf", archive, "-C", path.Join("/in/linux", goarch), "simstore",
		})
	}

	return pkg.
		WithExec([]string{"sh", "-c", "sha256sum *.tar.gz > SHA256SUMS"}).
		Directory("/out")
}

// publish syncs dir into the bucket under the simstore/<prefix> key.
func (t *Simstore) publish(ctx context.Context, b *bucket, dir *dagger.Directory, prefix string) error {
	name, err := b.name.Plaintext(ctx)
	if err != nil {
		return fmt.Errorf("reading bucket name: %w", err)
	}
	endpoint, err := b.endpoint.Plaintext(ctx)
	if err != nil {
		return fmt.Errorf("reading bucket endpoint: %w", err)
	}

	_, err = dag.Container().
		From("amazon/aws-cli:latest").
		WithSecretVariable("AWS_ACCESS_KEY_ID", b.accessKeyId).
		WithSecretVariable("AWS_SECRET_ACCESS_KEY", b.secretAccessKey).
		WithEnvVariable("AWS_DEFAULT_REGION", "auto").
		WithDirectory("/release", dir).
		WithExec([]string{
			"aws", "s3", "sync", "/release",
			"s3://" + path.Join(name, "simstore", prefix),
			"--endpoint-url", endpoint,
			"--delete",
		}).
		Sync(ctx)
	if err != nil {
		return fmt.Errorf("publishing simstore/%s: %w", prefix, err)
	}
	return nil
}

// Release packages a tagged simstore release and publishes it under both
// simstore/<version> and simstore/latest
func (t *Simstore) Release(
	ctx context.Context,

	// Version string (e.g., "v1.0.0")
	version string,

	// Git commit SHA
	commit string,

	// Bucket endpoint URL
	endpoint *dagger.Secret,

	// Bucket name
	bucketName *dagger.Secret,

	// Bucket access key ID
	accessKeyId *dagger.Secret,

	// Bucket secret access key
	secretAccessKey *dagger.Secret,
) (*dagger.Directory, error) {
	b := &bucket{endpoint, bucketName, accessKeyId, secretAccessKey}
	release := t.Package(ctx, version, commit)

	for _, prefix := range []string{version, "latest"} {
		if err := t.publish(ctx, b, release, prefix); err != nil {
			return release, err
		}
	}
	return release, nil
}

// Nightly packages the current commit and publishes it under
// simstore/nightly/<YYYY-MM-DD>
func (t *Simstore) Nightly(
	ctx context.Context,

	// Git commit SHA
	commit string,

	// Bucket endpoint URL
	endpoint *dagger.Secret,

	// Bucket name
	bucketName *dagger.Secret,

	// Bucket access key ID
	accessKeyId *dagger.Secret,

	// Bucket secret access key
	secretAccessKey *dagger.Secret,
) (*dagger.Directory, error) {
	b := &bucket{endpoint, bucketName, accessKeyId, secretAccessKey}
	version := "nightly-" + commit
	if len(commit) > 12 {
		version = "nightly-" + commit[:12]
	}
	release := t.Package(ctx, version, commit)

	prefix := path.Join("nightly", time.Now().UTC().Format(time.DateOnly))
	return release, t.publish(ctx, b, release, prefix)
}
