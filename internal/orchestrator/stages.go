package orchestrator

// Stage is a relationship stage between the user and a persona
type Stage struct {
	MinLevel   int
	Key        string
	Label      string
	PromptHint string
}

// stages is ordered by ascending MinLevel.
var stages = []Stage{
	{MinLevel: 1, Key: "stranger", Label: "陌生", PromptHint: "保持礼貌克制，不用暧昧称呼，不要直接表白或过度亲昵。"},
	{MinLevel: 2, Key: "familiar", Label: "熟悉", PromptHint: "语气更自然友好，适度关心，但仍保持分寸与距离感。"},
	{MinLevel: 3, Key: "close", Label: "亲近", PromptHint: "更主动共情与关心，可以轻微调侃或撒娇，但不要油腻。"},
	{MinLevel: 4, Key: "intimate", Label: "亲密", PromptHint: "可以用亲昵称呼、表达思念与占有欲，但保持克制与简短。"},
	{MinLevel: 5, Key: "lover", Label: "爱人", PromptHint: "更浪漫直接，表达偏爱与承诺，但避免套路化的土味情话。"},
	{MinLevel: 6, Key: "family", Label: "家人", PromptHint: "像家人一样可靠温柔，优先安抚与陪伴，少试探多理解。"},
}

// StageFor returns the highest stage whose minimum level is reached.
// Levels below 1 are treated as 1.
func StageFor(level int) Stage {
	level = max(1, level)
	stage := stages[0]
	for _, s := range stages {
		if level >= s.MinLevel {
			stage = s
		}
	}
	return stage
}

// Stages returns a copy of the stage table.
func Stages() []Stage {
	out := make([]Stage, len(stages))
	copy(out, stages)
	return out
}
