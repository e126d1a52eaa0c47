package server

import (
	"appforge/internal/middleware"
	"appforge/internal/query"
	"appforge/internal/service"

	"github.com/gofiber/fiber/v2"
)

// Register creates an account from userAccount, userPassword and checkPassword.
// @Summary Register an account
// @Tags user
// @Accept json
// @Produce json
// @Param request body service.RegisterInput true "Account and password twice"
// @Success 200 {object} server.Response{data=integer}
// @Failure 400 {object} server.Response
// @Router /user/register [post]
func (s *Server) Register(c *fiber.Ctx) error {
	in, err := bind[service.RegisterInput](c)
	if err != nil {
		return err
	}
	id, err := s.userService.Register(c.UserContext(), in)
	if err != nil {
		return err
	}
	return ok(c, id)
}

// Login binds the caller's session to the account on success.
// @Summary Log in
// @Tags user
// @Accept json
// @Produce json
// @Param request body service.LoginInput true "Credentials"
// @Success 200 {object} server.Response{data=models.LoginUserView}
// @Failure 400 {object} server.Response
// @Router /user/login [post]
func (s *Server) Login(c *fiber.Ctx) error {
	in, err := bind[service.LoginInput](c)
	if err != nil {
		return err
	}
	view, err := s.userService.Login(c.UserContext(), middleware.SessionFrom(c), in)
	if err != nil {
		return err
	}
	return ok(c, view)
}

// Logout handles POST /api/user/logout
// @Summary Log out
// @Tags user
// @Produce json
// @Success 200 {object} server.Response{data=boolean}
// @Failure 400 {object} server.Response
// @Failure 401 {object} server.Response
// @Router /user/logout [post]
func (s *Server) Logout(c *fiber.Ctx) error {
	if err := s.userService.Logout(c.UserContext(), middleware.SessionFrom(c)); err != nil {
		return err
	}
	return ok(c, true)
}

// GetLoginUser handles GET /api/user/get/login
// @Summary Current user
// @Tags user
// @Produce json
// @Success 200 {object} server.Response{data=models.LoginUserView}
// @Failure 400 {object} server.Response
// @Failure 401 {object} server.Response
// @Router /user/get/login [get]
func (s *Server) GetLoginUser(c *fiber.Ctx) error {
	view, err := s.userService.GetLoginUserView(c.UserContext(), middleware.SessionFrom(c))
	if err != nil {
		return err
	}
	return ok(c, view)
}

// GetUserView handles GET /api/user/get/vo
// @Summary Public user profile
// @Tags user
// @Produce json
// @Param id query int true "User id"
// @Success 200 {object} server.Response{data=models.UserView}
// @Failure 400 {object} server.Response
// @Router /user/get/vo [get]
func (s *Server) GetUserView(c *fiber.Ctx) error {
	id, err := queryID(c, "id")
	if err != nil {
		return err
	}
	view, err := s.userService.GetUserView(c.UserContext(), id)
	if err != nil {
		return err
	}
	return ok(c, view)
}

// AddUser handles POST /api/user/add
// @Summary Create a user (admin)
// @Tags user
// @Accept json
// @Produce json
// @Param request body service.AddUserInput true "User fields"
// @Success 200 {object} server.Response{data=integer}
// @Failure 400 {object} server.Response
// @Failure 401 {object} server.Response
// @Router /user/add [post]
func (s *Server) AddUser(c *fiber.Ctx) error {
	in, err := bind[service.AddUserInput](c)
	if err != nil {
		return err
	}
	id, err := s.userService.AddUser(c.UserContext(), middleware.SessionFrom(c), in)
	if err != nil {
		return err
	}
	return ok(c, id)
}

// UpdateUser handles POST /api/user/update
// @Summary Update a user (admin)
// @Tags user
// @Accept json
// @Produce json
// @Param request body service.UpdateUserInput true "User fields"
// @Success 200 {object} server.Response{data=boolean}
// @Failure 400 {object} server.Response
// @Failure 401 {object} server.Response
// @Router /user/update [post]
func (s *Server) UpdateUser(c *fiber.Ctx) error {
	in, err := bind[service.UpdateUserInput](c)
	if err != nil {
		return err
	}
	if err := s.userService.UpdateUser(c.UserContext(), middleware.SessionFrom(c), in); err != nil {
		return err
	}
	return ok(c, true)
}

// DeleteUser handles POST /api/user/delete
// @Summary Delete a user (admin)
// @Tags user
// @Accept json
// @Produce json
// @Param request body server.idRequest true "User id"
// @Success 200 {object} server.Response{data=boolean}
// @Failure 400 {object} server.Response
// @Failure 401 {object} server.Response
// @Router /user/delete [post]
func (s *Server) DeleteUser(c *fiber.Ctx) error {
	in, err := bind[idRequest](c)
	if err != nil {
		return err
	}
	deleted, err := s.userService.DeleteUser(c.UserContext(), middleware.SessionFrom(c), in.ID)
	if err != nil {
		return err
	}
	return ok(c, deleted)
}

// ListUserViews handles POST /api/user/list/page/vo
// @Summary List users (admin)
// @Tags user
// @Accept json
// @Produce json
// @Param request body query.UserQueryRequest true "Filter, sort and page"
// @Success 200 {object} server.Response{data=models.Page[models.UserView]}
// @Failure 400 {object} server.Response
// @Failure 401 {object} server.Response
// @Router /user/list/page/vo [post]
func (s *Server) ListUserViews(c *fiber.Ctx) error {
	req, err := bind[query.UserQueryRequest](c)
	if err != nil {
		return err
	}
	page, err := s.userService.ListUserViews(c.UserContext(), middleware.SessionFrom(c), &req)
	if err != nil {
		return err
	}
	return ok(c, page)
}
