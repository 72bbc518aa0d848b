package bubblesync

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/splitleasesharath/splitlease-sub012/models"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// GetEntryHandler returns one queue entry by id.
func GetEntryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		entry, err := models.GetSyncEntry(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, entry)
	}
}

// ListEntriesHandler returns the sync history for one primary-store record.
func ListEntriesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		entityType := strings.TrimSpace(c.Query("entity_type"))
		entityId := strings.TrimSpace(c.Query("entity_id"))
		if entityType == "" || entityId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "entity_type and entity_id are required"})
			return
		}

		entries, err := models.GetEntitySyncHistory(c.Request.Context(), entityType, entityId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"entries": entries})
	}
}

func ListDeadLettersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		if offset < 0 {
			offset = 0
		}

		entries, total, err := models.ListDeadLetters(c.Request.Context(), limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"entries": entries,
			"total":   total,
			"offset":  offset,
		})
	}
}

// RequeueDeadLetterHandler puts a dead-lettered entry back in line with a
// fresh attempt budget.
func RequeueDeadLetterHandler(d *Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		entry, err := models.RequeueDeadLetter(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
				return
			}
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}

		if d != nil {
			d.Nudge()
		}
		c.JSON(http.StatusOK, entry)
	}
}

// ExportDeadLettersHandler writes the current dead-letter backlog as an xlsx
// attachment for triage outside the API.
func ExportDeadLettersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, _, err := models.ListDeadLetters(c.Request.Context(), 200, 0)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		f := excelize.NewFile()
		f.SetCellValue("Sheet1", "A1", "EntryId")
		f.SetCellValue("Sheet1", "B1", "CorrelationId")
		f.SetCellValue("Sheet1", "C1", "EntityType")
		f.SetCellValue("Sheet1", "D1", "EntityId")
		f.SetCellValue("Sheet1", "E1", "Operation")
		f.SetCellValue("Sheet1", "F1", "Reason")
		f.SetCellValue("Sheet1", "G1", "Attempts")
		f.SetCellValue("Sheet1", "H1", "LastError")
		f.SetCellValue("Sheet1", "I1", "CreatedAt")

		for i, e := range entries {
			row := fmt.Sprint(i + 2)
			f.SetCellValue("Sheet1", "A"+row, e.ID)
			f.SetCellValue("Sheet1", "B"+row, e.CorrelationId)
			f.SetCellValue("Sheet1", "C"+row, e.EntityType)
			f.SetCellValue("Sheet1", "D"+row, e.EntityId)
			f.SetCellValue("Sheet1", "E"+row, e.Operation)
			f.SetCellValue("Sheet1", "F"+row, derefString(e.DeadLetterReason))
			f.SetCellValue("Sheet1", "G"+row, e.AttemptCount)
			f.SetCellValue("Sheet1", "H"+row, derefString(e.LastError))
			f.SetCellValue("Sheet1", "I"+row, e.CreatedAt.Format("2006-01-02 15:04:05"))
		}

		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", "attachment; filename=dead_letters.xlsx")
		if err := f.Write(c.Writer); err != nil {
			c.Status(http.StatusInternalServerError)
		}
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
