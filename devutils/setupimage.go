package devutils

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const setupImageRepo = "pgdiff-test-setup"

// SetupImageDir is the build context of the setup image used by the
// integration specs. Its setup_db creates the database app with a public
// widgets table and an internal schema holding table t.
func SetupImageDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "testdata", "setup")
}

// BuildSetupImage builds the Dockerfile in dir and returns the image name.
// The image is kept so that it can be passed by name in SETUP_IMAGES.
func BuildSetupImage(ctx context.Context, dir string, tag string) (image string, err error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			FromDockerfile: testcontainers.FromDockerfile{
				Context:   dir,
				Repo:      setupImageRepo,
				Tag:       tag,
				KeepImage: true,
			},
			Cmd:        []string{"true"},
			WaitingFor: wait.ForExit(),
		},
		Started: true,
	})
	if container != nil {
		defer func() {
			if terminateErr := container.Terminate(ctx); terminateErr != nil && err == nil {
				err = fmt.Errorf("failed to remove build container: %w", terminateErr)
			}
		}()
	}
	if err != nil {
		err = fmt.Errorf("failed to build setup image from %s: %w", dir, err)
		return
	}
	image = fmt.Sprintf("%s:%s", setupImageRepo, tag)
	return
}
