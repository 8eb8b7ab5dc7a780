package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"

	"kangsantri/internal/providers"
	"kangsantri/internal/queue"
	"kangsantri/internal/state"
)

func (s *Service) listProjects(b *gotgbot.Bot, ctx *ext.Context) error {
	s.app.SetView(state.ViewSavedCodes)
	editing, _ := s.app.ActiveEditing()
	projects := s.app.Projects()
	return s.replyWithMarkup(ctx, b, projectListText(projects, editing.ID), projectKeyboard(projects))
}

func (s *Service) showProject(b *gotgbot.Bot, ctx *ext.Context) error {
	id := strings.TrimSpace(commandRemainder(ctx.EffectiveMessage.GetText()))
	if id == "" {
		p, ok := s.app.ActiveEditing()
		if !ok {
			return s.reply(ctx, b, "Usage: /project <id>")
		}
		id = p.ID
	}
	return s.sendProject(b, ctx, id)
}

func (s *Service) sendProject(b *gotgbot.Bot, ctx *ext.Context, id string) error {
	p, ok := s.app.Project(id)
	if !ok {
		return s.reply(ctx, b, "Project not found.")
	}
	return NewNotifier(b).SendCode(context.Background(), ctx.EffectiveChat.Id, 0, p.Name, p.Code)
}

func (s *Service) editProject(b *gotgbot.Bot, ctx *ext.Context) error {
	id := strings.TrimSpace(commandRemainder(ctx.EffectiveMessage.GetText()))
	if id == "" {
		return s.reply(ctx, b, "Usage: /edit <project id>")
	}
	return s.reply(ctx, b, s.startEditing(id))
}

func (s *Service) startEditing(id string) string {
	p, ok := s.app.Project(id)
	if !ok {
		return "Project not found."
	}
	s.app.SetActiveEditing(p.ID)
	return "Editing " + strconv.Quote(p.Name) + ". Describe changes with /code <instruction>."
}

func (s *Service) deleteProject(b *gotgbot.Bot, ctx *ext.Context) error {
	id := strings.TrimSpace(commandRemainder(ctx.EffectiveMessage.GetText()))
	if id == "" {
		return s.reply(ctx, b, "Usage: /delproject <project id>")
	}
	return s.reply(ctx, b, s.removeProject(id))
}

func (s *Service) removeProject(id string) string {
	if err := s.app.DeleteProject(id); err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return "Project not found."
		}
		return "Failed to delete project."
	}
	return "Project deleted."
}

// code modifies the project being edited, or creates one when none is.
func (s *Service) code(b *gotgbot.Bot, ctx *ext.Context) error {
	instruction := strings.TrimSpace(commandRemainder(ctx.EffectiveMessage.GetText()))
	if instruction == "" {
		return s.reply(ctx, b, "Usage: /code <what to build or change>")
	}
	s.app.SetView(state.ViewCoding)
	job := queue.Job{Kind: queue.KindCode, Text: instruction}
	if p, ok := s.app.ActiveEditing(); ok {
		job.ProjectID = p.ID
	}
	return s.enqueue(b, ctx, job)
}

func (s *Service) newCode(b *gotgbot.Bot, ctx *ext.Context) error {
	instruction := strings.TrimSpace(commandRemainder(ctx.EffectiveMessage.GetText()))
	if instruction == "" {
		return s.reply(ctx, b, "Usage: /newcode <what to build>")
	}
	s.app.SetActiveEditing("")
	s.app.SetView(state.ViewCoding)
	return s.enqueue(b, ctx, queue.Job{Kind: queue.KindCode, Text: instruction})
}

func (s *Service) imagine(b *gotgbot.Bot, ctx *ext.Context) error {
	count, prompt := parseImagine(commandRemainder(ctx.EffectiveMessage.GetText()))
	if prompt == "" {
		return s.reply(ctx, b, "Usage: /imagine [1-4] <prompt>")
	}
	s.app.SetView(state.ViewImage)
	return s.enqueue(b, ctx, queue.Job{Kind: queue.KindImage, Text: prompt, Count: count})
}

// parseImagine reads an optional leading image count.
func parseImagine(rest string) (int, string) {
	first, tail := splitFirstWord(rest)
	if n, err := strconv.Atoi(first); err == nil && tail != "" {
		return providers.ClampImageCount(n), tail
	}
	return providers.MinImages, strings.TrimSpace(rest)
}
