package mcpserver

// ArtifactFormat describes the markdown documents a generated proposal
// writes, so LLM consumers can read and review them consistently.
const ArtifactFormat = `# Jeebs Artifact Format

Every auto-generated proposal writes four markdown documents under ` + "`" + `evolution/` + "`" + `.

## Paths

| Artifact | Path |
|---|---|
| reflection | ` + "`" + `evolution/reflections/<YYYYMMDD-HHMMSS>-<slug>.md` + "`" + ` |
| learning_plan | ` + "`" + `evolution/learning/<YYYYMMDD-HHMMSS>-<slug>-plan.md` + "`" + ` |
| scope_roadmap | ` + "`" + `evolution/scope/<YYYYMMDD-HHMMSS>-<slug>-scope.md` + "`" + ` |
| experiment_backlog | ` + "`" + `evolution/experiments/<YYYYMMDD-HHMMSS>-<slug>-experiments.md` + "`" + ` |

The timestamp is UTC. The slug is the lowercased title with every run of
non-alphanumeric characters replaced by a single dash.

## Structure

` + "```" + `markdown
---
title: 'Learning Plan: Knowledge search plan'
artifact: learning_plan
candidate: search_plan
severity: Medium
confidence: "0.81"
knowledge_drive: "0.64"
tags:
  - evolution
  - learning_plan
---

# Learning Plan: Knowledge search plan

Generated at: 2026-03-14T09:26:53Z

## Priority Topics
...
` + "```" + `

## Sections

- **reflection**: Summary, Rationale, Source Signals, Suggested Actions.
- **learning_plan**: Priority Topics, Search Queries For Knowledge Expansion, Study Loop.
- **scope_roadmap**: Now, Next, Later, Out Of Scope.
- **experiment_backlog**: Hypotheses, Experiments, Baseline.

## Rules

1. The ` + "`" + `Generated at:` + "`" + ` line and the path timestamp are the only parts that differ
   between two proposals built from the same signals. Duplicate detection ignores both.
2. Documents are UTF-8 with a trailing newline.
3. Proposals only ever write inside the allow-listed workspace directories.
`
