package generator

import (
	"fmt"
	"strings"

	"github.com/pipelineforge/pipelineforge/pkg/domain"
)

// primaryArtifact names the file in an artifact set that carries the
// platform's stage/job graph, the one the reinforcement hooks apply to.
func primaryArtifact(platform domain.TargetPlatform) string {
	if platform == domain.PlatformBuildServer {
		return "Jenkinsfile"
	}
	return "pipeline.yml"
}

// learnHook is the per-platform stage/job block a reinforcement-eligible
// artifact set must carry, appended verbatim when a proven template
// predates the hook or had it stripped by a prior repair pass.
var learnHook = map[domain.TargetPlatform]string{
	domain.PlatformHostedPipeline: "\nlearn:\n  stage: learn\n  script:\n    - curl -s -X POST \"${PIPELINEFORGE_URL}/api/v1/learn/record\" -d '{\"status\":\"success\"}'\n",
	domain.PlatformRunnerService:  "  learn:\n    needs: [push]\n    script:\n      - echo learn-record\n",
	domain.PlatformBuildServer:    "  post {\n    success {\n      sh 'echo learn-record'\n    }\n  }\n",
}

// injectReinforcementHooks ensures the primary artifact in set carries a
// learn stage/job parameterized for this platform, appending one if
// absent. A proven template that already names "learn" is left
// untouched: the standard hook is an addition, never a rewrite of
// whatever the artifact already does there.
func injectReinforcementHooks(set *domain.ArtifactSet, platform domain.TargetPlatform) {
	name := primaryArtifact(platform)
	content, ok := set.Get(name)
	if !ok {
		return
	}
	if strings.Contains(content, "learn") {
		return
	}

	hook, ok := learnHook[platform]
	if !ok {
		return
	}
	set.Set(name, fmt.Sprintf("%s\n%s", strings.TrimRight(content, "\n"), hook))
}
