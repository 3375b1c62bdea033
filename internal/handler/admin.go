package handler

import (
	"net/http"
	"strconv"

	"github.com/cocdeshijie/MikaniroBytes/internal/dto"
	"github.com/cocdeshijie/MikaniroBytes/internal/service"
	"github.com/cocdeshijie/MikaniroBytes/utils"

	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	admin *service.AdminService
}

func NewAdminHandler(admin *service.AdminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

func paramID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func (h *AdminHandler) ListGroups(c *gin.Context) {
	groups, err := h.admin.ListGroups(c.Request.Context())
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, groups)
}

func (h *AdminHandler) CreateGroup(c *gin.Context) {
	var req dto.GroupCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	group, err := h.admin.CreateGroup(c.Request.Context(), req)
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, group)
}

// UpdateGroup applies a partial update; a JSON null limit removes that limit.
func (h *AdminHandler) UpdateGroup(c *gin.Context) {
	id, ok := paramID(c, "group_id")
	if !ok {
		return
	}
	var req dto.GroupUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	group, err := h.admin.UpdateGroup(c.Request.Context(), id, req)
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, group)
}

func (h *AdminHandler) DeleteGroup(c *gin.Context) {
	id, ok := paramID(c, "group_id")
	if !ok {
		return
	}
	deleteFiles, _ := strconv.ParseBool(c.DefaultQuery("delete_files", "false"))
	resp, err := h.admin.DeleteGroup(c.Request.Context(), id, deleteFiles)
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, resp)
}

func (h *AdminHandler) GroupFiles(c *gin.Context) {
	id, ok := paramID(c, "group_id")
	if !ok {
		return
	}
	files, err := h.admin.GroupFiles(c.Request.Context(), id)
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, files)
}

// ListUsers lists every user, or one group's members with ?group_id=.
func (h *AdminHandler) ListUsers(c *gin.Context) {
	var groupID *uint64
	if raw := c.Query("group_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group_id"})
			return
		}
		groupID = &id
	}
	users, err := h.admin.ListUsers(c.Request.Context(), groupID)
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, users)
}

func (h *AdminHandler) UpdateUserGroup(c *gin.Context) {
	id, ok := paramID(c, "user_id")
	if !ok {
		return
	}
	var req dto.UserGroupUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	user, err := h.admin.UpdateUserGroup(c.Request.Context(), id, req.GroupID)
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, user)
}

func (h *AdminHandler) DeleteUser(c *gin.Context) {
	id, ok := paramID(c, "user_id")
	if !ok {
		return
	}
	deleteFiles, _ := strconv.ParseBool(c.DefaultQuery("delete_files", "false"))
	resp, err := h.admin.DeleteUser(c.Request.Context(), id, deleteFiles)
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, resp)
}

func (h *AdminHandler) UserFiles(c *gin.Context) {
	id, ok := paramID(c, "user_id")
	if !ok {
		return
	}
	files, err := h.admin.UserFiles(c.Request.Context(), id)
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, files)
}

func (h *AdminHandler) GetSettings(c *gin.Context) {
	st, err := h.admin.GetSettings(c.Request.Context())
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, st)
}

func (h *AdminHandler) UpdateSettings(c *gin.Context) {
	var req dto.SettingsUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	st, err := h.admin.UpdateSettings(c.Request.Context(), req)
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, st)
}
