package agentops

import (
	"fmt"
	"strings"

	"aitown/internal/app/ports"
	"aitown/internal/domain/agent"
	"aitown/internal/domain/game"
	"aitown/internal/domain/memory"
)

const (
	messageMaxTokens    = 300
	summaryMaxTokens    = 500
	importanceMaxTokens = 8
	reflectMaxTokens    = 600
	historyLimit        = 20
	reflectionWindow    = 100
)

type conversationContext struct {
	self     game.Player
	other    game.Player
	agent    game.Agent
	messages []game.Message
	memories []memory.Scored
	kind     agent.MessageKind
}

func (c conversationContext) authorName(playerID string) string {
	switch playerID {
	case c.self.ID:
		return c.self.Name
	case c.other.ID:
		return c.other.Name
	}
	return playerID
}

func messagePrompt(c conversationContext) []ports.ChatMessage {
	var b strings.Builder
	switch c.kind {
	case agent.MessageStart:
		fmt.Fprintf(&b, "You are %s, and you just started a conversation with %s.\n", c.self.Name, c.other.Name)
	case agent.MessageLeave:
		fmt.Fprintf(&b, "You are %s, and you're currently in a conversation with %s. You've decided to leave the conversation and would like to politely tell them you're leaving.\n", c.self.Name, c.other.Name)
	default:
		fmt.Fprintf(&b, "You are %s, and you're currently in a conversation with %s.\n", c.self.Name, c.other.Name)
	}
	if c.agent.Identity != "" {
		fmt.Fprintf(&b, "About you: %s\n", c.agent.Identity)
	}
	if c.agent.Plan != "" {
		fmt.Fprintf(&b, "Your goals for the conversation: %s\n", c.agent.Plan)
	}
	if c.other.Description != "" {
		fmt.Fprintf(&b, "About %s: %s\n", c.other.Name, c.other.Description)
	}
	if len(c.memories) > 0 {
		fmt.Fprintf(&b, "Here are some memories about previous conversations with %s:\n", c.other.Name)
		for _, m := range c.memories {
			fmt.Fprintf(&b, " - %s\n", m.Description)
		}
	}
	switch c.kind {
	case agent.MessageStart:
		fmt.Fprintf(&b, "Greet %s and bring up something from your memories if there is one. Be brief, under 200 characters.\n", c.other.Name)
	case agent.MessageContinue:
		b.WriteString("Below is the current chat history. Do not greet them again. Be brief, under 200 characters.\n")
	case agent.MessageLeave:
		b.WriteString("Below is the current chat history. How would you like to tell them that you're leaving? Be brief, under 200 characters.\n")
	}

	out := []ports.ChatMessage{{Role: "system", Content: b.String()}}
	for _, m := range c.messages {
		role := "user"
		if m.Author == c.self.ID {
			role = "assistant"
		}
		out = append(out, ports.ChatMessage{Role: role, Content: fmt.Sprintf("%s to %s: %s", c.authorName(m.Author), c.authorName(otherOf(c, m.Author)), m.Text)})
	}
	out = append(out, ports.ChatMessage{Role: "user", Content: fmt.Sprintf("%s to %s:", c.self.Name, c.other.Name)})
	return out
}

func otherOf(c conversationContext, playerID string) string {
	if playerID == c.self.ID {
		return c.other.ID
	}
	return c.self.ID
}

// stopSequences keep the model from writing the other side's turn.
func stopSequences(c conversationContext) []string {
	return []string{
		c.other.Name + " to " + c.self.Name + ":",
		c.self.Name + " to " + c.other.Name + ":",
	}
}

// cleanMessage strips a leading speaker tag the model sometimes echoes.
func cleanMessage(c conversationContext, text string) string {
	text = strings.TrimSpace(text)
	prefix := c.self.Name + " to " + c.other.Name + ":"
	text = strings.TrimSpace(strings.TrimPrefix(text, prefix))
	return strings.Trim(text, "\"")
}

func fallbackMessage(c conversationContext) string {
	switch c.kind {
	case agent.MessageStart:
		return fmt.Sprintf("Hi %s, good to see you.", c.other.Name)
	case agent.MessageLeave:
		return fmt.Sprintf("I should get going, %s. Talk soon!", c.other.Name)
	}
	return "Sorry, I lost my train of thought. What were you saying?"
}

func summaryPrompt(c conversationContext) []ports.ChatMessage {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, and you just finished a conversation with %s. ", c.self.Name, c.other.Name)
	b.WriteString("Summarize the conversation from your perspective, using first-person pronouns like \"I\", and add if you liked or disliked this interaction.\n\n")
	for _, m := range c.messages {
		fmt.Fprintf(&b, "%s to %s: %s\n", c.authorName(m.Author), c.authorName(otherOf(c, m.Author)), m.Text)
	}
	b.WriteString("\nSummary:")
	return []ports.ChatMessage{{Role: "user", Content: b.String()}}
}

func importancePrompt(description string) []ports.ChatMessage {
	return []ports.ChatMessage{{
		Role: "user",
		Content: "On the scale of 0 to 9, where 0 is purely mundane (e.g., brushing teeth, making bed) and 9 is extremely poignant (e.g., a break up, college acceptance), rate the likely poignancy of the following piece of memory.\n" +
			"Memory: " + description + "\n" +
			"Answer on a scale of 0 to 9. Respond with number only, e.g. \"5\"",
	}}
}

func reflectionPrompt(name string, mems []memory.Memory) []ports.ChatMessage {
	var b strings.Builder
	fmt.Fprintf(&b, "[no prose]\n[Output only JSON]\n\nYou are %s, statements about you:\n", name)
	for i, m := range mems {
		fmt.Fprintf(&b, "Statement %d: %s\n", i, m.Description)
	}
	b.WriteString("\nWhat 3 high-level insights can you infer from the above statements?\n")
	b.WriteString(`Return in JSON format, where the key is a list of input statements that contributed to your insights and value is your insight. Make the response parseable by Typescript JSON.parse() function. DO NOT escape characters or include "\n" or white space in response.` + "\n")
	b.WriteString(`Example: [{"insight": "...", "statementIds": [1,2]}, {"insight": "...", "statementIds": [1]}, ...]`)
	return []ports.ChatMessage{{Role: "user", Content: b.String()}}
}
