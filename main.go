package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	LoadConfig()

	// Create the seed personalities on first run
	if err := InitializeSeedPersonalities(); err != nil {
		log.Fatalf("Failed to initialize seed personalities: %v", err)
	}

	router := setupRouter()

	// Start server
	log.Printf("Starting LLM Council backend on port %s...", ServerPort)
	if err := router.Run(":" + ServerPort); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// setupRouter builds the Gin engine with middleware and all routes
func setupRouter() *gin.Engine {
	router := gin.Default()

	// Request size limit middleware
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxRequestBodySize)
		c.Next()
	})

	// CORS middleware with dynamic origin validation
	router.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			// In production, use environment-configured origins
			if len(CORSAllowedOrigins) > 0 && CORSAllowedOrigins[0] != "" {
				for _, allowedOrigin := range CORSAllowedOrigins {
					if origin == allowedOrigin {
						return true
					}
				}
				return false
			}
			// In development, allow any localhost/127.0.0.1 origin
			return len(origin) > 0 && (len(origin) >= 16 && origin[:16] == "http://localhost" ||
				len(origin) >= 14 && origin[:14] == "http://127.0.0")
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type"},
		AllowCredentials: true,
	}))

	// Routes
	router.GET("/", healthCheck)
	router.GET("/api/config", getConfigHandler)
	router.GET("/api/conversations", listConversationsHandler)
	router.POST("/api/conversations", createConversationHandler)
	router.GET("/api/conversations/:id", getConversationHandler)
	router.POST("/api/conversations/:id/message", sendMessageHandler)
	router.POST("/api/conversations/:id/message/stream", sendMessageStreamHandler)
	router.POST("/api/conversations/:id/cancel", cancelTurnHandler)
	router.GET("/api/personalities", listPersonalitiesHandler)
	router.POST("/api/personalities", createPersonalityHandler)
	router.GET("/api/personalities/:id", getPersonalityHandler)
	router.PUT("/api/personalities/:id", updatePersonalityHandler)
	router.DELETE("/api/personalities/:id", deletePersonalityHandler)
	router.GET("/api/documents", listDocumentsHandler)
	router.POST("/api/documents", createDocumentHandler)
	router.DELETE("/api/documents/:id", deleteDocumentHandler)
	router.POST("/api/documents/:id/active", setDocumentActiveHandler)
	router.POST("/api/fetch-url", fetchURLHandler)

	return router
}

// healthCheck returns a simple health check response.
// GET / - Returns service status information.
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "LLM Council API",
	})
}

// getConfigHandler exposes the council composition to the frontend.
// GET /api/config - Returns council models, chairman and title model.
func getConfigHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"council_models": CouncilModels,
		"chairman_model": ChairmanModel,
		"title_model":    TitleModel,
	})
}

// listConversationsHandler lists all conversations with metadata only.
// GET /api/conversations - Returns array of conversation metadata sorted by date.
func listConversationsHandler(c *gin.Context) {
	conversations, err := ListConversations()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to list conversations: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, conversations)
}

// createConversationHandler creates a new conversation.
// POST /api/conversations - Optional body carries a personality config that
// is frozen into the conversation.
func createConversationHandler(c *gin.Context) {
	var request CreateConversationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("Invalid request: %v", err),
			})
			return
		}
	}

	conversation, err := CreateConversation(request.PersonalityConfig)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to create conversation: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, conversation)
}

// getConversationHandler gets a specific conversation by ID.
// GET /api/conversations/:id - Returns full conversation including all messages.
func getConversationHandler(c *gin.Context) {
	conversationID := c.Param("id")

	conversation, err := GetConversation(conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to get conversation: %v", err),
		})
		return
	}

	if conversation == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Conversation not found",
		})
		return
	}

	c.JSON(http.StatusOK, conversation)
}

// sendMessageHandler runs a full turn and returns the aggregated result.
// POST /api/conversations/:id/message - Non-streaming variant; the same
// pipeline runs, with events folded into one response.
func sendMessageHandler(c *gin.Context) {
	conversationID := c.Param("id")

	var request SendMessageRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	conversation, err := GetConversation(conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to get conversation: %v", err),
		})
		return
	}
	if conversation == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Conversation not found",
		})
		return
	}

	ctx, err := turns.Begin(context.Background(), conversationID)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{
			"error": err.Error(),
		})
		return
	}
	defer turns.End(conversationID)

	// Fold pipeline events into a single aggregate response
	response := SendMessageResponse{}
	var pipelineError string
	collect := func(event StreamEvent) {
		switch event.Type {
		case EventStage1Complete:
			if stage1, ok := event.Data.([]Stage1Response); ok {
				response.Stage1 = stage1
			}
		case EventStage2Complete:
			if stage2, ok := event.Data.([]Stage2Ranking); ok {
				response.Stage2 = stage2
			}
			if metadata, ok := event.Metadata.(*CouncilMetadata); ok {
				response.Metadata = metadata
			}
		case EventStage3Complete:
			if stage3, ok := event.Data.(*Stage3Response); ok {
				response.Stage3 = stage3
			}
		case EventChairmanComplete:
			if result, ok := event.Data.(*Stage3Response); ok {
				response.ChairmanResponse = result
			}
		case EventComplete:
			response.Mode = event.Mode
		case EventCancelled:
			response.Cancelled = true
		case EventError:
			pipelineError = event.Message
		}
	}

	turnReq := TurnRequest{
		ConversationID:   conversationID,
		Content:          request.Content,
		Mode:             request.Mode,
		IncludeDocuments: request.IncludeDocuments,
	}
	if err := RunTurn(ctx, turnReq, collect); err != nil {
		if pipelineError == "" {
			pipelineError = err.Error()
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": pipelineError,
		})
		return
	}

	if response.Cancelled {
		response.Mode = ""
	}
	c.JSON(http.StatusOK, response)
}

// sendMessageStreamHandler runs a full turn and streams progress via SSE.
// POST /api/conversations/:id/message/stream - Council turns emit
// stage1_start through stage3_complete then complete; chairman turns emit
// chairman_start, chairman_complete, complete. A cancelled turn ends with
// a single cancelled event.
func sendMessageStreamHandler(c *gin.Context) {
	conversationID := c.Param("id")

	var request SendMessageRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	// Check existence before committing to an SSE response
	conversation, err := GetConversation(conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to get conversation: %v", err),
		})
		return
	}
	if conversation == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Conversation not found",
		})
		return
	}

	ctx, err := turns.Begin(context.Background(), conversationID)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{
			"error": err.Error(),
		})
		return
	}
	defer turns.End(conversationID)

	// Set SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	emit := func(event StreamEvent) {
		sendSSEEvent(c, event)
	}

	turnReq := TurnRequest{
		ConversationID:   conversationID,
		Content:          request.Content,
		Mode:             request.Mode,
		IncludeDocuments: request.IncludeDocuments,
	}
	// Fatal errors were already emitted as terminal error events
	_ = RunTurn(ctx, turnReq, emit)
}

// cancelTurnHandler requests cancellation of the conversation's in-flight
// turn. POST /api/conversations/:id/cancel - The pipeline stops at its
// next stage boundary and records a cancelled message.
func cancelTurnHandler(c *gin.Context) {
	conversationID := c.Param("id")

	if !turns.Cancel(conversationID) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "No turn in progress for this conversation",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "cancelling",
	})
}

// sendSSEEvent sends a Server-Sent Event.
// Marshals data to JSON and writes as SSE format with "data: " prefix.
func sendSSEEvent(c *gin.Context, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("Failed to marshal SSE event: %v", err)
		return
	}
	c.Writer.WriteString(fmt.Sprintf("data: %s\n\n", string(jsonData)))
	c.Writer.Flush()
}

// listPersonalitiesHandler lists personalities.
// GET /api/personalities - Query params: ?type=simple|detailed
func listPersonalitiesHandler(c *gin.Context) {
	typeFilter := c.Query("type")

	personalities, err := ListPersonalities(typeFilter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to list personalities: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, personalities)
}

// createPersonalityHandler creates a new personality.
// POST /api/personalities
func createPersonalityHandler(c *gin.Context) {
	var request CreatePersonalityRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	personality, err := CreatePersonality(request)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Failed to create personality: %v", err),
		})
		return
	}

	c.JSON(http.StatusCreated, personality)
}

// getPersonalityHandler gets a specific personality by ID.
// GET /api/personalities/:id
func getPersonalityHandler(c *gin.Context) {
	personality, err := GetPersonality(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to get personality: %v", err),
		})
		return
	}
	if personality == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Personality not found",
		})
		return
	}

	c.JSON(http.StatusOK, personality)
}

// updatePersonalityHandler replaces a personality's fields.
// PUT /api/personalities/:id
func updatePersonalityHandler(c *gin.Context) {
	var request CreatePersonalityRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	personality, err := UpdatePersonality(c.Param("id"), request)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Failed to update personality: %v", err),
		})
		return
	}
	if personality == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Personality not found",
		})
		return
	}

	c.JSON(http.StatusOK, personality)
}

// deletePersonalityHandler removes a personality.
// DELETE /api/personalities/:id
func deletePersonalityHandler(c *gin.Context) {
	deleted, err := DeletePersonality(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to delete personality: %v", err),
		})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Personality not found",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// listDocumentsHandler lists uploaded documents with previews and reports
// when the active-documents context was last assembled.
// GET /api/documents
func listDocumentsHandler(c *gin.Context) {
	documents, err := ListDocuments()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to list documents: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, DocumentListResponse{
		Documents:          documents,
		ContextLastUpdated: documentContextCache.GetLastUpdated(),
	})
}

// createDocumentHandler registers a document from extracted text.
// POST /api/documents - Body: {"filename": "...", "text": "..."}
func createDocumentHandler(c *gin.Context) {
	var request struct {
		Filename string `json:"filename" binding:"required"`
		Text     string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	document, err := CreateDocument(request.Filename, request.Text)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to create document: %v", err),
		})
		return
	}

	c.JSON(http.StatusCreated, document)
}

// deleteDocumentHandler removes a document.
// DELETE /api/documents/:id
func deleteDocumentHandler(c *gin.Context) {
	deleted, err := DeleteDocument(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to delete document: %v", err),
		})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Document not found",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// setDocumentActiveHandler toggles a document's inclusion in context.
// POST /api/documents/:id/active - Body: {"active": true|false}
func setDocumentActiveHandler(c *gin.Context) {
	var request struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	document, err := SetDocumentActive(c.Param("id"), *request.Active)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to update document: %v", err),
		})
		return
	}
	if document == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Document not found",
		})
		return
	}

	c.JSON(http.StatusOK, document)
}

// fetchURLHandler fetches and extracts content from a given URL
// POST /api/fetch-url - Body: {"url": "https://..."}
func fetchURLHandler(c *gin.Context) {
	var request struct {
		URL string `json:"url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	content, err := FetchURLContent(context.Background(), request.URL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to fetch URL content: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"content": content,
	})
}
