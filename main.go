package main

import (
	"context"
	"fmt"
	"strings"

	actionsx "github.com/biancassilva/pharmacy-sales-chatbot/agent/actions"
	composex "github.com/biancassilva/pharmacy-sales-chatbot/agent/compose"
	contractx "github.com/biancassilva/pharmacy-sales-chatbot/agent/contract"
	conversationx "github.com/biancassilva/pharmacy-sales-chatbot/agent/conversation"
	directoryx "github.com/biancassilva/pharmacy-sales-chatbot/agent/directory"
	extractx "github.com/biancassilva/pharmacy-sales-chatbot/agent/extract"
	llmx "github.com/biancassilva/pharmacy-sales-chatbot/agent/llm"
	promptx "github.com/biancassilva/pharmacy-sales-chatbot/agent/prompt"
	configx "github.com/biancassilva/pharmacy-sales-chatbot/pkg/config"
	genaix "github.com/biancassilva/pharmacy-sales-chatbot/pkg/genai"
	_ "github.com/biancassilva/pharmacy-sales-chatbot/pkg/logger/autoload"
)

type app struct {
	directory  *directoryx.Client
	engine     *extractx.Engine
	composer   *composex.Composer
	dispatcher *actionsx.Dispatcher
}

func newApp() *app {
	llmCfg := configx.MustLoad[llmx.Config]("OPENAI")
	if err := llmCfg.Validate(); err != nil {
		panic(err)
	}

	dirCfg := configx.MustLoad[directoryx.Config]("PHARMACY_API")
	directory, err := directoryx.NewClient(*dirCfg)
	if err != nil {
		panic(err)
	}

	prompts := promptx.LoadPromptSet()

	// A missing API key means NewClient returns nil and every capability
	// below runs in deterministic fallback mode. The interfaces are only
	// assigned from a non-nil client.
	var extractor contractx.FieldExtractor
	if c := genaix.NewClient(llmCfg.GenAIFor(llmx.RoleExtractor)); c != nil {
		extractor = c
	}
	var generator contractx.TextGenerator
	if c := genaix.NewClient(llmCfg.GenAIFor(llmx.RoleComposer)); c != nil {
		generator = c
	}

	engineCfg := configx.MustLoad[extractx.Config]("EXTRACTION")
	composerCfg := configx.MustLoad[composex.Config]("AGENT")

	return &app{
		directory:  directory,
		engine:     extractx.NewEngine(extractor, prompts, *engineCfg),
		composer:   composex.New(generator, prompts, *composerCfg),
		dispatcher: actionsx.NewDispatcher(),
	}
}

func (a *app) newCall() *conversationx.Machine {
	m, err := conversationx.New(conversationx.Deps{
		Directory: a.directory,
		Engine:    a.engine,
		Composer:  a.composer,
		Actions:   a.dispatcher,
	})
	if err != nil {
		panic(err)
	}
	return m
}

func (a *app) runCall(ctx context.Context, title, phone string, utterances []string) {
	printHeader(title)

	m := a.newCall()
	greeting, err := m.StartCall(ctx, phone)
	if err != nil {
		panic(err)
	}
	fmt.Printf("Bot: %s\n", greeting)

	for _, u := range utterances {
		fmt.Printf("\nUser: %s\n", u)
		reply, err := m.HandleMessage(ctx, u)
		if err != nil {
			panic(err)
		}
		fmt.Printf("Bot: %s\n", reply)
	}

	summary := m.Summary()
	fmt.Printf("\nStage: %s | Turns: %d | Extraction: %s | Actions: %d\n",
		summary.Stage, summary.TurnCount, a.engine.Mode(m.Session()), len(summary.ActionOutcomes))
}

func printHeader(title string) {
	fmt.Printf("\n%s\n%s\n%s\n", strings.Repeat("=", 60), title, strings.Repeat("=", 60))
}

func main() {
	a := newApp()
	ctx := context.Background()

	a.runCall(ctx, "Existing customer call", "555-123-4567", []string{
		"Hi, we're having some issues with our current system and wanted to see what you can offer.",
		"Yes, we're definitely interested in learning more.",
		"Email would be great, please send the details over.",
		"Thank you so much for your help!",
	})

	a.runCall(ctx, "New lead call", "555-999-9999", []string{
		"Hi, I'm calling about pharmacy management software. We're opening a new pharmacy next month.",
		"Our pharmacy will be called Sunset Pharmacy.",
		"We're located in San Diego.",
		"We're expecting to process about 800 prescriptions per month initially.",
		"I'm Sarah Johnson, the pharmacy manager.",
		"My email is sarah@sunsetpharmacy.com",
		"Yes, we're very interested in learning more about your solutions.",
		"A call would be great, sometime tomorrow morning if possible.",
		"Thank you so much for your help!",
	})

	fmt.Printf("\nEmails sent: %d | Callbacks scheduled: %d\n",
		len(a.dispatcher.EmailHistory()), len(a.dispatcher.CallbackHistory()))
}
