package app

import (
	"gorm.io/gorm"

	chatrepo "github.com/AWE-Awareness-App/MEDI-chatbot/internal/data/repos/chat"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/logger"
)

type Repos struct {
	Users         chatrepo.UserRepo
	Conversations chatrepo.ConversationRepo
	Messages      chatrepo.MessageRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Users:         chatrepo.NewUserRepo(db, log),
		Conversations: chatrepo.NewConversationRepo(db, log),
		Messages:      chatrepo.NewMessageRepo(db, log),
	}
}
