package diff

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/acronis/go-appkit/log"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/testcontainers/testcontainers-go/network"

	"github.com/technopolitica/pgdiff/devutils"
	"github.com/technopolitica/pgdiff/internal/config"
)

var _ = Describe("diffing against a running target", Label("integration"), Ordered, func() {
	var (
		target     devutils.TargetDB
		cfg        config.Config
		setupImage string
	)

	BeforeAll(func(ctx context.Context) {
		skipWithoutDocker()

		var err error
		setupImage, err = devutils.BuildSetupImage(ctx, devutils.SetupImageDir(), "diff")
		Expect(err).NotTo(HaveOccurred())

		nw, err := network.New(ctx)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(nw.Remove)

		target, err = devutils.StartTargetDB(ctx, nw, "target", "app")
		DeferCleanup(target.Terminate)
		Expect(err).NotTo(HaveOccurred())
		Expect(target.MigrateTo(ctx, "latest")).To(Succeed())

		cfg = config.Config{
			SetupImages:        []string{setupImage},
			DBURI:              target.URI(),
			DBName:             "app",
			PGImage:            "postgres:16-alpine",
			MigraImage:         config.DefaultMigraImage,
			TargetNetwork:      nw.Name,
			StartupTimeout:     time.Minute,
			SetupTimeout:       2 * time.Minute,
			PGReadyOccurrences: 2,
		}
	}, NodeTimeout(10*time.Minute))

	It("writes only the schemas that differ", func(ctx context.Context) {
		outDir := GinkgoT().TempDir()
		schemaCfg := cfg
		schemaCfg.Schemas = []string{"internal", "public"}

		Expect(NewController(schemaCfg, log.NewDisabledLogger()).Diff(ctx, outDir)).To(Succeed())

		entries, err := os.ReadDir(outDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
		content, err := os.ReadFile(filepath.Join(outDir, "internal.sql"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(content)).To(Equal(createInternal))
	}, NodeTimeout(10*time.Minute))

	It("writes the full database diff", func(ctx context.Context) {
		outDir := GinkgoT().TempDir()

		Expect(NewController(cfg, log.NewDisabledLogger()).Diff(ctx, outDir)).To(Succeed())

		content, err := os.ReadFile(filepath.Join(outDir, FullDBFile))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(content)).To(Equal(createInternal))
	}, NodeTimeout(10*time.Minute))

	It("leaves the target untouched", func(ctx context.Context) {
		exists, err := target.SchemaExists(ctx, "internal")

		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeFalse())
	})
})
