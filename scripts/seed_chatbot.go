package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"voxtro/internal/config"
	"voxtro/internal/model"
	"voxtro/internal/pkg/id"
	"voxtro/internal/pkg/logger"
	"voxtro/internal/pkg/mongodb"
	"voxtro/internal/repository"
)

// 开发用演示机器人种子脚本
// 运行: go run ./scripts/seed_chatbot.go
func main() {
	// 1. 加载配置（与 cmd/root.go 保持一致的搜索路径）
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.voxtro")

	viper.SetEnvPrefix("VOXTRO")
	viper.AutomaticEnv()

	viper.SetDefault("mongo.uri", "mongodb://localhost:27017")
	viper.SetDefault("mongo.database", "voxtro")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.output", "stdout")

	if err := viper.ReadInConfig(); err != nil {
		fmt.Fprintln(os.Stderr, "No config file found, using defaults and environment variables")
	}

	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to unmarshal config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}

	// 2. 连接 MongoDB
	client, err := mongodb.New(&cfg.Mongo)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect mongo")
	}
	defer func() {
		_ = client.Close(context.Background())
	}()

	ctx := context.Background()
	if err := mongodb.EnsureIndexes(client.Database()); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure indexes")
	}

	// 3. 写入演示机器人（幂等，重复运行覆盖配置）
	botID := os.Getenv("SEED_CHATBOT_ID")
	if botID == "" {
		botID = "demo-bot"
	}

	bot := &model.Chatbot{
		ID:           botID,
		UserID:       "demo-tenant",
		Name:         "Acme Support",
		SystemPrompt: "You are a friendly support assistant for Acme. Answer concisely and only from the knowledge provided.",
		FirstMessage: "Hi! I'm the Acme assistant. How can I help?",
		Placeholder:  "Ask me anything about Acme...",
		IsActive:     true,
		Model:        "gpt-4o-mini",
		Temperature:  0.7,
		MaxTokens:    500,
		CacheEnabled: true,
		HistoryLimit: 20,
		Theme: model.ChatbotTheme{
			PrimaryColor: "#336699",
			Position:     "bottom-right",
			ButtonText:   "Chat with us",
		},
		Actions: []model.ChatbotAction{
			{
				ID:              id.New(),
				Name:            "show_contact_form",
				Description:     "Show the contact form when the visitor wants to be contacted",
				Type:            model.ActionTypeShowForm,
				FormID:          "contact",
				TriggerKeywords: []string{"contact form", "leave your details"},
				IsActive:        true,
			},
		},
		Forms: []model.ChatbotForm{
			{
				ID:   "contact",
				Name: "Contact us",
				Fields: []model.FormField{
					{Name: "name", Label: "Name", Type: "text", Required: true},
					{Name: "email", Label: "Email", Type: "email", Required: true},
					{Name: "message", Label: "Message", Type: "textarea"},
				},
			},
		},
		FAQs: []model.FAQ{
			{ID: id.New(), Question: "What is your pricing?", Answer: "Acme starts at $10 per month.", IsActive: true, Revision: "1"},
			{ID: id.New(), Question: "How do I cancel?", Answer: "You can cancel anytime from your account page.", IsActive: true, SortOrder: 1, Revision: "1"},
		},
	}

	repo := repository.NewChatbotRepo(client.Database())
	if err := repo.Upsert(ctx, bot); err != nil {
		log.Fatal().Err(err).Msg("failed to seed chatbot")
	}

	fmt.Printf("Chatbot seeded: id=%s name=%q active=%v\n", bot.ID, bot.Name, bot.IsActive)
}
