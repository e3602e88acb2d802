package domain

import "github.com/yungbote/crawlshastra-backend/internal/domain/chat"

type ChatThread = chat.ChatThread
type ChatMessage = chat.ChatMessage
type ChatSource = chat.Source
