package e2e_tests

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gbytes"
	"github.com/onsi/gomega/gexec"
)

var _ = Describe("pgdiff diff", func() {
	var outDir string

	BeforeEach(func() {
		outDir = GinkgoT().TempDir()
	})

	It("requires the output directory argument", func() {
		session := runPgdiff(map[string]string{"SETUP_IMAGES": "app:1"}, "diff")

		Eventually(session).Should(gexec.Exit(1))
		Expect(session.Err).To(gbytes.Say("missing required argument <output-dir>"))
	})

	It("rejects an output directory that does not exist", func() {
		session := runPgdiff(map[string]string{"SETUP_IMAGES": "app:1"}, "diff", filepath.Join(outDir, "missing"))

		Eventually(session).Should(gexec.Exit(1))
		Expect(session.Err).To(gbytes.Say("output directory"))
	})

	It("rejects a file as output directory", func() {
		file := filepath.Join(outDir, "full_db.sql")
		Expect(os.WriteFile(file, nil, 0o644)).To(Succeed())

		session := runPgdiff(map[string]string{"SETUP_IMAGES": "app:1"}, "diff", file)

		Eventually(session).Should(gexec.Exit(1))
		Expect(session.Err).To(gbytes.Say("not a directory"))
	})

	It("fails before starting anything when SETUP_IMAGES is not defined", func() {
		session := runPgdiff(nil, "diff", outDir)

		Eventually(session).Should(gexec.Exit(1))
		Expect(session.Err).To(gbytes.Say("invalid configuration SETUP_IMAGES: not defined"))
		Expect(os.ReadDir(outDir)).To(BeEmpty())
	})

	It("rejects a malformed timeout", func() {
		session := runPgdiff(map[string]string{"SETUP_IMAGES": "app:1", "STARTUP_TIMEOUT": "soon"}, "diff", outDir)

		Eventually(session).Should(gexec.Exit(1))
		Expect(session.Err).To(gbytes.Say("invalid configuration STARTUP_TIMEOUT"))
	})

	It("reports a reference database that cannot be started", Label("integration"), func() {
		skipWithoutDocker()

		session := runPgdiff(map[string]string{
			"SETUP_IMAGES":    "app:1",
			"PG_IMAGE":        "alpine:3.20",
			"STARTUP_TIMEOUT": "5s",
		}, "diff", outDir)

		Eventually(session, 2*time.Minute).Should(gexec.Exit(1))
		Expect(session.Err).To(gbytes.Say(`failed to start reference database \(alpine:3.20\)`))
		Expect(os.ReadDir(outDir)).To(BeEmpty())
	})
})
