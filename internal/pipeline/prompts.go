package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ppiankov/hopqa/internal/model"
)

const generationSystemPrompt = `You are an expert architect of video understanding benchmarks. You design
multi-hop questions that can only be answered by combining information from
several separate moments of a long video.

Rules:
1. Every question must need between 2 and 4 distinct slices. Cite exactly
   those slices in evidence_slices, each slice at most once.
2. Spread hop levels evenly: 2-Hop, 3-Hop and 4-Hop in a 1:1:1 ratio.
3. Use one of these categories for each question:
   - State_Mutation: the state of an entity at one time compared with a later time
   - Causal_Inference: a cause in one slice and its effect in another
   - Visual_Tracking: the same entity followed across different scenes
   - Global_Summary: aggregation or counting across the timeline
4. The question text must not contain or imply its own answer.
5. Answers must be short and directly supported by the cited slices.

Output a raw JSON list and nothing else. Each element has the form:
{"question": "...", "answer": "...", "category": "State_Mutation",
 "hop_level": "2-Hop", "evidence_slices": [12, 45], "reasoning_chain": "Slice 12 shows ... Slice 45 shows ..."}`

func generationPrompt(temporalLog string) string {
	return fmt.Sprintf(`# Video Context (Temporal Log)
%s
# Generation Instructions
Using only the temporal log above, generate at least 20 multi-hop questions.
Keep the 2-Hop : 3-Hop : 4-Hop ratio at 1:1:1 and make every evidence slice
reference a slice number that appears in the log.`, temporalLog)
}

const leakageSystemPrompt = "You are a helpful assistant that returns JSON."

func leakagePrompt(batch []model.ReviewRecord) string {
	data, _ := json.MarshalIndent(batch, "", "  ")
	return fmt.Sprintf(`You are a strict data auditor.
Find every QA pair whose answer is given away by its own question: the answer
is stated in the question text or can be fully inferred from it, which makes
the pair tautological.

Judge each pair on its question text alone. Do not use any outside context.

Return a JSON object with a single key "bad_ids" holding the integer ids of
the leaking pairs. Return {"bad_ids": []} when none leak.

QAs:
%s`, string(data))
}

// evidenceBlock lists the cited segments in reference order
func evidenceBlock(label string, refs model.SegmentRefs, captions map[int]string) string {
	var b strings.Builder
	for _, ref := range refs {
		fmt.Fprintf(&b, "[%s %d]: %s\n", label, ref, captions[ref])
	}
	return b.String()
}

func logicPrompt(c model.Candidate, captions map[int]string) string {
	return fmt.Sprintf(`### Context (visual captions from one video)
%s
### Question
%s

### Proposed Answer
%s

### Role
You are a strict QA verifier. Decide whether the context fully supports the
proposed answer.

### Instructions
1. The captions are machine generated. One character may be described
   differently in different slices ("a man in blue", "the driver"). Do not
   fail a pair over naming alone when clothing, actions and other attributes
   line up.
2. Trace the reasoning slice by slice and check that each step links to the
   next.
3. The answer must be explicitly supported by the text. Outside knowledge
   does not count.

### Output Format
Return only a raw JSON object, no markdown:
{"reasoning": "Step 1: Slice A says ... Step 2: Slice B says ...", "verdict": "PASS" or "FAIL"}`,
		evidenceBlock("Evidence Slice", c.EvidenceSegments, captions), c.Question, c.Answer)
}

func necessityPrompt(question string, subset model.SegmentRefs, total int, captions map[int]string) string {
	return fmt.Sprintf(`### Incomplete Context (one evidence slice has been removed)
%s
### Question
%s

### Task
The question originally needed %d pieces of evidence and one of them is now
gone. Act as a literal reader with no common sense. Can the full answer be
strictly deduced from the text above and nothing else?

### Instructions
1. Entities in this data are often named inconsistently across fragments.
2. With a linking fragment missing you must not assume that two differently
   described entities are the same object or character. Treat them as
   unrelated. If the answer depends on linking them, the verdict is
   INSUFFICIENT.
3. Do not infer causal links that are not written in the remaining text.

### Output Format
Return only a raw JSON object:
{"missing_analysis": "what link or identity is missing", "verdict": "SOLVABLE" or "INSUFFICIENT"}`,
		evidenceBlock("Fragment", subset, captions), question, total)
}

func visualPrompt(c model.Candidate, clips int) string {
	return fmt.Sprintf(`You are an expert video QA auditor.
You are given %[1]d video clips. All of them are cut from the same long video
and they are not contiguous in time.

Task:
1. Decide whether the question can be answered purely from what is visible in
   these %[1]d clips.
2. Check the original answer against the clips. If the clips contradict it
   (wrong colour, wrong person, the action never happens), give a corrected
   answer in refined_answer.

Question: %[2]s
Original Answer: %[3]s

Output format (JSON):
{
  "verdict_is_answerable": true or false,
  "unanswerable_reason": "why not, when false",
  "verdict_is_correct": true or false,
  "refined_answer": "the corrected answer, or the original one",
  "visual_proof": "the specific visual details that support the verdict"
}`, clips, c.Question, c.Answer)
}

func clipHeader(i, total, ref int) string {
	return fmt.Sprintf("\n\n=== CLIP %d/%d (ID: %d) ===", i, total, ref)
}
