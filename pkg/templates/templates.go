// Package templates implements the default template library: static,
// language/framework/target-platform indexed artifact
// templates returned as a last resort, and used as few-shot LLM priming
// context.
package templates

import (
	"fmt"
	"strings"

	"github.com/pipelineforge/pipelineforge/pkg/domain"
)

// RequiredStages is the exact ordered set of stages a hosted-pipeline
// target must carry.
var RequiredStages = []string{
	"compile", "build", "test", "sast", "quality", "security", "push", "notify", "learn",
}

// compileImage maps a detected language to its compile/build-stage base
// image in the private registry.
var compileImage = map[string]string{
	"java":       "maven:3.9-eclipse-temurin-17",
	"python":     "python:3.11-slim",
	"go":         "golang:1.22-alpine",
	"rust":       "rust:1.93-slim",
	"javascript": "node:20-alpine",
	"ruby":       "ruby:3.3-alpine",
	"csharp":     "dotnet-aspnet:8.0-alpine",
}

// runtimeImage maps a detected language to its runtime/push-stage base
// image in the private registry.
var runtimeImage = map[string]string{
	"java":       "eclipse-temurin:17-jre",
	"python":     "python:3.11-slim",
	"go":         "alpine:3.18",
	"rust":       "alpine:3.18",
	"javascript": "nginx:alpine",
	"ruby":       "ruby:3.3-alpine",
	"csharp":     "dotnet-aspnet:8.0-alpine",
}

// compileCommand maps a detected language to its compile-stage shell
// command.
var compileCommand = map[string]string{
	"java":       "mvn clean package -DskipTests",
	"python":     "pip install -r requirements.txt",
	"go":         "go build -o app ./...",
	"rust":       "cargo build --release",
	"javascript": "npm install && npm run build || true",
	"ruby":       "bundle install",
	"csharp":     "dotnet build",
}

// sastCommand maps a detected language to its static-analysis command.
var sastCommand = map[string]string{
	"java":       "mvn spotbugs:check -DskipTests || true",
	"python":     "pip install bandit && bandit -r . || true",
	"go":         "go vet ./... || true",
	"rust":       "cargo clippy --all-targets -- -D warnings || true",
	"javascript": "npm audit || true",
	"ruby":       "gem install brakeman && brakeman --no-pager || true",
	"csharp":     "dotnet format --verify-no-changes || true",
}

const fallbackLanguage = "java"

func imageFor(table map[string]string, language string) string {
	if image, ok := table[language]; ok {
		return image
	}
	return table[fallbackLanguage]
}

func commandFor(table map[string]string, language string) string {
	if cmd, ok := table[language]; ok {
		return cmd
	}
	return table[fallbackLanguage]
}

// Default builds the default artifact set for analysis and platform: a
// pipeline definition plus a container build recipe, using the
// static per-language tables. It is returned as a last resort and as
// additional LLM context for few-shot anchoring.
func Default(analysis *domain.RepositoryDescriptor, platform domain.TargetPlatform, privateRegistryVar string) *domain.ArtifactSet {
	set := domain.NewArtifactSet(analysis, platform)
	set.Set("container.build", dockerfile(analysis, privateRegistryVar))

	switch platform {
	case domain.PlatformBuildServer:
		set.Set("Jenkinsfile", jenkinsfile(analysis, privateRegistryVar))
	case domain.PlatformRunnerService:
		set.Set("pipeline.yml", runnerPipeline(analysis, privateRegistryVar))
	default:
		set.Set("pipeline.yml", hostedPipeline(analysis, privateRegistryVar))
	}
	return set
}

func dockerfile(analysis *domain.RepositoryDescriptor, registryVar string) string {
	compile := imageFor(compileImage, analysis.Language)
	runtime := imageFor(runtimeImage, analysis.Language)
	build := commandFor(compileCommand, analysis.Language)

	var b strings.Builder
	fmt.Fprintf(&b, "FROM %s/%s AS build\n", registryVar, compile)
	fmt.Fprintf(&b, "WORKDIR /workspace\n")
	fmt.Fprintf(&b, "COPY . .\n")
	fmt.Fprintf(&b, "RUN %s\n\n", build)
	fmt.Fprintf(&b, "FROM %s/%s\n", registryVar, runtime)
	fmt.Fprintf(&b, "COPY --from=build /workspace/app /app/app\n")
	fmt.Fprintf(&b, "ENTRYPOINT [\"/app/app\"]\n")
	return b.String()
}

func hostedPipeline(analysis *domain.RepositoryDescriptor, registryVar string) string {
	compile := imageFor(compileImage, analysis.Language)
	sast := commandFor(sastCommand, analysis.Language)

	var b strings.Builder
	b.WriteString("stages:\n")
	for _, s := range RequiredStages {
		fmt.Fprintf(&b, "  - %s\n", s)
	}
	fmt.Fprintf(&b, "\ncompile:\n  stage: compile\n  image: %s/%s\n  script:\n    - %s\n", registryVar, compile, commandFor(compileCommand, analysis.Language))
	fmt.Fprintf(&b, "\nbuild:\n  stage: build\n  script:\n    - docker build -t %s/app:latest .\n", registryVar)
	fmt.Fprintf(&b, "\ntest:\n  stage: test\n  image: %s/%s\n  script:\n    - echo running tests\n", registryVar, compile)
	fmt.Fprintf(&b, "\nsast:\n  stage: sast\n  image: %s/%s\n  script:\n    - %s\n", registryVar, compile, sast)
	fmt.Fprintf(&b, "\nquality:\n  stage: quality\n  script:\n    - echo quality gate\n")
	fmt.Fprintf(&b, "\nsecurity:\n  stage: security\n  script:\n    - echo trivy scan\n")
	fmt.Fprintf(&b, "\npush:\n  stage: push\n  script:\n    - echo push to %s\n", registryVar)
	fmt.Fprintf(&b, "\nnotify:\n  stage: notify\n  script:\n    - echo notify\n")
	fmt.Fprintf(&b, "\nlearn:\n  stage: learn\n  script:\n    - curl -s -X POST \"${PIPELINEFORGE_URL}/api/v1/learn/record\" -d '{\"status\":\"success\"}'\n")
	return b.String()
}

func jenkinsfile(analysis *domain.RepositoryDescriptor, registryVar string) string {
	compile := imageFor(compileImage, analysis.Language)
	build := commandFor(compileCommand, analysis.Language)

	var b strings.Builder
	b.WriteString("pipeline {\n  agent any\n  stages {\n")
	fmt.Fprintf(&b, "    stage('compile') {\n      agent { docker { image '%s/%s' } }\n      steps { sh '%s' }\n    }\n", registryVar, compile, build)
	b.WriteString("    stage('build') {\n      steps { sh 'docker build -t app:latest .' }\n    }\n")
	b.WriteString("    stage('test') {\n      steps { sh 'echo running tests' }\n    }\n")
	b.WriteString("  }\n  post {\n    success {\n      sh 'echo learn-record'\n    }\n    failure {\n      sh 'echo notify-failure'\n    }\n  }\n}\n")
	return b.String()
}

func runnerPipeline(analysis *domain.RepositoryDescriptor, registryVar string) string {
	compile := imageFor(compileImage, analysis.Language)
	build := commandFor(compileCommand, analysis.Language)

	var b strings.Builder
	b.WriteString("jobs:\n")
	fmt.Fprintf(&b, "  compile:\n    image: %s/%s\n    script:\n      - %s\n", registryVar, compile, build)
	b.WriteString("  build:\n    needs: [compile]\n    script:\n      - docker build -t app:latest .\n")
	b.WriteString("  test:\n    needs: [build]\n    script:\n      - echo running tests\n")
	b.WriteString("  push:\n    needs: [test]\n    script:\n      - echo push\n")
	b.WriteString("  learn:\n    needs: [push]\n    script:\n      - echo learn-record\n")
	return b.String()
}
