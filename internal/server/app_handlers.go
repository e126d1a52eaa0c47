package server

import (
	"appforge/internal/middleware"
	"appforge/internal/query"
	"appforge/internal/service"

	"github.com/gofiber/fiber/v2"
)

type deployRequest struct {
	ID        uint   `json:"id"`
	DeployKey string `json:"deployKey"`
}

// CreateApp creates an app for the logged-in user and returns its id.
// @Summary Create an app
// @Tags app
// @Accept json
// @Produce json
// @Param request body service.CreateAppInput true "Initial prompt"
// @Success 200 {object} server.Response{data=integer}
// @Failure 400 {object} server.Response
// @Failure 401 {object} server.Response
// @Router /app/add [post]
func (s *Server) CreateApp(c *fiber.Ctx) error {
	in, err := bind[service.CreateAppInput](c)
	if err != nil {
		return err
	}
	id, err := s.appService.CreateApp(c.UserContext(), middleware.SessionFrom(c), in)
	if err != nil {
		return err
	}
	return ok(c, id)
}

// UpdateMyApp handles POST /api/app/update
// @Summary Rename an owned app
// @Tags app
// @Accept json
// @Produce json
// @Param request body service.UpdateMyAppInput true "App id and name"
// @Success 200 {object} server.Response{data=boolean}
// @Failure 400 {object} server.Response
// @Failure 401 {object} server.Response
// @Router /app/update [post]
func (s *Server) UpdateMyApp(c *fiber.Ctx) error {
	in, err := bind[service.UpdateMyAppInput](c)
	if err != nil {
		return err
	}
	if err := s.appService.UpdateMyApp(c.UserContext(), middleware.SessionFrom(c), in); err != nil {
		return err
	}
	return ok(c, true)
}

// DeleteApp handles POST /api/app/delete
// @Summary Delete an app
// @Tags app
// @Accept json
// @Produce json
// @Param request body server.idRequest true "App id"
// @Success 200 {object} server.Response{data=boolean}
// @Failure 400 {object} server.Response
// @Failure 401 {object} server.Response
// @Router /app/delete [post]
func (s *Server) DeleteApp(c *fiber.Ctx) error {
	in, err := bind[idRequest](c)
	if err != nil {
		return err
	}
	deleted, err := s.appService.DeleteApp(c.UserContext(), middleware.SessionFrom(c), in.ID)
	if err != nil {
		return err
	}
	return ok(c, deleted)
}

// GetAppView handles GET /api/app/get/vo
// @Summary Get an app
// @Tags app
// @Produce json
// @Param id query int true "App id"
// @Success 200 {object} server.Response{data=models.AppView}
// @Failure 400 {object} server.Response
// @Router /app/get/vo [get]
func (s *Server) GetAppView(c *fiber.Ctx) error {
	id, err := queryID(c, "id")
	if err != nil {
		return err
	}
	view, err := s.appService.GetAppView(c.UserContext(), id)
	if err != nil {
		return err
	}
	return ok(c, view)
}

// ListMyApps handles POST /api/app/my/list/page/vo
// @Summary List my apps
// @Tags app
// @Accept json
// @Produce json
// @Param request body query.AppQueryRequest true "Filter, sort and page"
// @Success 200 {object} server.Response{data=models.Page[models.AppView]}
// @Failure 400 {object} server.Response
// @Failure 401 {object} server.Response
// @Router /app/my/list/page/vo [post]
func (s *Server) ListMyApps(c *fiber.Ctx) error {
	req, err := bind[query.AppQueryRequest](c)
	if err != nil {
		return err
	}
	page, err := s.appService.ListMyApps(c.UserContext(), middleware.SessionFrom(c), &req)
	if err != nil {
		return err
	}
	return ok(c, page)
}

// ListFeaturedApps is public; it needs no session.
// @Summary List featured apps
// @Tags app
// @Accept json
// @Produce json
// @Param request body query.PageRequest true "Page"
// @Success 200 {object} server.Response{data=models.Page[models.AppView]}
// @Failure 400 {object} server.Response
// @Router /app/good/list/page/vo [post]
func (s *Server) ListFeaturedApps(c *fiber.Ctx) error {
	req, err := bind[query.PageRequest](c)
	if err != nil {
		return err
	}
	page, err := s.appService.ListFeaturedApps(c.UserContext(), req)
	if err != nil {
		return err
	}
	return ok(c, page)
}

// ListDeployedApps handles POST /api/app/deployed/list/page/vo
// @Summary List deployed apps
// @Tags app
// @Accept json
// @Produce json
// @Param request body query.PageRequest true "Page"
// @Success 200 {object} server.Response{data=models.Page[models.AppView]}
// @Failure 400 {object} server.Response
// @Router /app/deployed/list/page/vo [post]
func (s *Server) ListDeployedApps(c *fiber.Ctx) error {
	req, err := bind[query.PageRequest](c)
	if err != nil {
		return err
	}
	page, err := s.appService.ListDeployedApps(c.UserContext(), req)
	if err != nil {
		return err
	}
	return ok(c, page)
}

// GetDeployedApp handles GET /api/app/deployed/{deployKey}
// @Summary Get a deployed app
// @Tags app
// @Produce json
// @Param deployKey path string true "Deploy key"
// @Success 200 {object} server.Response{data=models.AppView}
// @Failure 400 {object} server.Response
// @Router /app/deployed/{deployKey} [get]
func (s *Server) GetDeployedApp(c *fiber.Ctx) error {
	view, err := s.appService.GetDeployedApp(c.UserContext(), c.Params("deployKey"))
	if err != nil {
		return err
	}
	return ok(c, view)
}

// RecordDeployment publishes an owned app under the given deploy key.
// @Summary Publish an app
// @Tags app
// @Accept json
// @Produce json
// @Param request body server.deployRequest true "App id and deploy key"
// @Success 200 {object} server.Response{data=string}
// @Failure 400 {object} server.Response
// @Failure 401 {object} server.Response
// @Router /app/deploy [post]
func (s *Server) RecordDeployment(c *fiber.Ctx) error {
	in, err := bind[deployRequest](c)
	if err != nil {
		return err
	}
	if err := s.appService.RecordDeployment(c.UserContext(), middleware.SessionFrom(c), in.ID, in.DeployKey); err != nil {
		return err
	}
	return ok(c, in.DeployKey)
}

// AdminUpdateApp handles POST /api/app/admin/update
// @Summary Update an app (admin)
// @Tags app
// @Accept json
// @Produce json
// @Param request body service.AdminUpdateAppInput true "App fields"
// @Success 200 {object} server.Response{data=boolean}
// @Failure 400 {object} server.Response
// @Failure 401 {object} server.Response
// @Router /app/admin/update [post]
func (s *Server) AdminUpdateApp(c *fiber.Ctx) error {
	in, err := bind[service.AdminUpdateAppInput](c)
	if err != nil {
		return err
	}
	if err := s.appService.AdminUpdateApp(c.UserContext(), middleware.SessionFrom(c), in); err != nil {
		return err
	}
	return ok(c, true)
}

// AdminListApps handles POST /api/app/admin/list/page/vo
// @Summary List apps (admin)
// @Tags app
// @Accept json
// @Produce json
// @Param request body query.AppQueryRequest true "Filter, sort and page"
// @Success 200 {object} server.Response{data=models.Page[models.AppView]}
// @Failure 400 {object} server.Response
// @Failure 401 {object} server.Response
// @Router /app/admin/list/page/vo [post]
func (s *Server) AdminListApps(c *fiber.Ctx) error {
	req, err := bind[query.AppQueryRequest](c)
	if err != nil {
		return err
	}
	page, err := s.appService.AdminListApps(c.UserContext(), middleware.SessionFrom(c), &req)
	if err != nil {
		return err
	}
	return ok(c, page)
}
