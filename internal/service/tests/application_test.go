package service_test

import (
	"mime/multipart"
	"sync"
	"testing"

	"github.com/fazamuttaqien/permitting/internal/domain"
	"github.com/fazamuttaqien/permitting/internal/dto"
	"github.com/fazamuttaqien/permitting/internal/model"
	"github.com/fazamuttaqien/permitting/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type ApplicationServiceTestSuite struct {
	ServiceTestSuite
}

func (suite *ApplicationServiceTestSuite) TestCreate() {
	suite.T().Run("Success - Creates a PENDING application with parameters", func(t *testing.T) {
		// Act
		app, err := suite.applicationService.Create(suite.ctx, suite.caller(creatorID), dto.CreateApplicationRequest{
			EntityID:     suite.entityID,
			PermitTypeID: suite.peryaTypeID,
			Parameters: []dto.ParameterRequest{
				{Name: "location", Value: "Town Plaza"},
				{Name: "location", Value: "Riverside"},
			},
		})

		// Assert
		assert.NoError(t, err)
		assert.Equal(t, domain.StatusPending, app.Status)
		assert.Equal(t, creatorID, app.CreatorID)
		assert.Equal(t, "Perya", app.PermitTypeName)
		assert.Nil(t, app.ApplicationNumber)
		assert.Len(t, app.Parameters, 2)
		assert.Equal(t, "Riverside", app.Parameters[1].Value)
		assert.Contains(t, suite.auditActions(app.ID), domain.AuditCreate)
	})

	suite.T().Run("Failure - Caller without create capability", func(t *testing.T) {
		_, err := suite.applicationService.Create(suite.ctx, suite.caller(cashierID), dto.CreateApplicationRequest{
			EntityID:     suite.entityID,
			PermitTypeID: suite.peryaTypeID,
		})
		assert.ErrorIs(t, err, common.ErrAuthorization)
	})

	suite.T().Run("Failure - Unknown entity", func(t *testing.T) {
		_, err := suite.applicationService.Create(suite.ctx, suite.caller(creatorID), dto.CreateApplicationRequest{
			EntityID:     9999,
			PermitTypeID: suite.peryaTypeID,
		})
		assert.ErrorIs(t, err, common.ErrValidation)
	})

	suite.T().Run("Failure - Unknown or inactive permit type", func(t *testing.T) {
		_, err := suite.applicationService.Create(suite.ctx, suite.caller(creatorID), dto.CreateApplicationRequest{
			EntityID:     suite.entityID,
			PermitTypeID: 9999,
		})
		assert.ErrorIs(t, err, common.ErrValidation)

		_, err = suite.applicationService.Create(suite.ctx, suite.caller(creatorID), dto.CreateApplicationRequest{
			EntityID:     suite.entityID,
			PermitTypeID: suite.retiredTypeID,
		})
		assert.ErrorIs(t, err, common.ErrValidation)
	})

	suite.T().Run("Failure - Empty parameter name", func(t *testing.T) {
		_, err := suite.applicationService.Create(suite.ctx, suite.caller(creatorID), dto.CreateApplicationRequest{
			EntityID:     suite.entityID,
			PermitTypeID: suite.peryaTypeID,
			Parameters:   []dto.ParameterRequest{{Name: "  ", Value: "x"}},
		})
		assert.ErrorIs(t, err, common.ErrValidation)
	})
}

func (suite *ApplicationServiceTestSuite) TestGet_NotFound() {
	_, err := suite.applicationService.Get(suite.ctx, 424242)
	suite.ErrorIs(err, common.ErrNotFound)
}

func (suite *ApplicationServiceTestSuite) TestDelete() {
	suite.T().Run("Success - Creator deletes own PENDING application", func(t *testing.T) {
		app := suite.createPerya(dto.ParameterRequest{Name: "location", Value: "Town Plaza"})

		err := suite.applicationService.Delete(suite.ctx, suite.caller(creatorID), app.ID)
		assert.NoError(t, err)

		_, err = suite.applicationService.Get(suite.ctx, app.ID)
		assert.ErrorIs(t, err, common.ErrNotFound)

		var params int64
		suite.db.Model(&model.ApplicationParameter{}).Where("application_id = ?", app.ID).Count(&params)
		assert.Zero(t, params)
	})

	suite.T().Run("Failure - Another creator may not delete", func(t *testing.T) {
		app := suite.createPerya()

		err := suite.applicationService.Delete(suite.ctx, suite.caller(otherCreatorID), app.ID)
		assert.ErrorIs(t, err, common.ErrAuthorization)
	})

	suite.T().Run("Success - Super admin deletes any PENDING application", func(t *testing.T) {
		app := suite.createPerya()

		err := suite.applicationService.Delete(suite.ctx, suite.caller(superAdminID), app.ID)
		assert.NoError(t, err)
	})

	suite.T().Run("Failure - Not PENDING", func(t *testing.T) {
		app := suite.assessedPerya()

		err := suite.applicationService.Delete(suite.ctx, suite.caller(superAdminID), app.ID)
		assert.ErrorIs(t, err, common.ErrConflict)
	})

	suite.T().Run("Failure - Caller without any delete capability", func(t *testing.T) {
		app := suite.createPerya()

		err := suite.applicationService.Delete(suite.ctx, suite.caller(assessorID), app.ID)
		assert.ErrorIs(t, err, common.ErrAuthorization)
	})
}

func (suite *ApplicationServiceTestSuite) TestChangePermitType() {
	suite.T().Run("Success - PENDING application switches type", func(t *testing.T) {
		app := suite.createPerya()

		updated, err := suite.applicationService.ChangePermitType(suite.ctx, suite.caller(creatorID), app.ID,
			dto.ChangePermitTypeRequest{PermitTypeID: suite.capitalTypeID})

		assert.NoError(t, err)
		assert.Equal(t, suite.capitalTypeID, updated.PermitTypeID)
		assert.Greater(t, updated.Version, app.Version)
	})

	suite.T().Run("Failure - Inactive permit type", func(t *testing.T) {
		app := suite.createPerya()

		_, err := suite.applicationService.ChangePermitType(suite.ctx, suite.caller(creatorID), app.ID,
			dto.ChangePermitTypeRequest{PermitTypeID: suite.retiredTypeID})
		assert.ErrorIs(t, err, common.ErrValidation)
	})

	suite.T().Run("Failure - Assessed application", func(t *testing.T) {
		app := suite.assessedPerya()

		_, err := suite.applicationService.ChangePermitType(suite.ctx, suite.caller(creatorID), app.ID,
			dto.ChangePermitTypeRequest{PermitTypeID: suite.capitalTypeID})
		assert.ErrorIs(t, err, common.ErrConflict)
	})

	suite.T().Run("Failure - Locked fees", func(t *testing.T) {
		app := suite.assessedPerya()
		// force the row back to PENDING while keeping its locked fees
		suite.db.Model(&model.AssessedFee{}).Where("application_id = ?", app.ID).Update("locked", true)
		suite.db.Model(&model.Application{}).Where("id = ?", app.ID).Update("status", string(domain.StatusPending))

		_, err := suite.applicationService.ChangePermitType(suite.ctx, suite.caller(creatorID), app.ID,
			dto.ChangePermitTypeRequest{PermitTypeID: suite.capitalTypeID})
		assert.ErrorIs(t, err, common.ErrConflict)
	})
}

func (suite *ApplicationServiceTestSuite) TestSubmit() {
	suite.T().Run("Success - Approvers are notified", func(t *testing.T) {
		app := suite.assessedPerya()

		submitted, err := suite.applicationService.Submit(suite.ctx, suite.caller(assessorID), app.ID)

		assert.NoError(t, err)
		assert.Equal(t, domain.StatusPendingApproval, submitted.Status)

		sent := suite.notifier.byType(domain.EventSubmittedForApproval)
		if assert.Len(t, sent, 1) {
			assert.ElementsMatch(t, []uint64{superAdminID, approverID}, sent[0].Recipients)
		}
	})

	suite.T().Run("Failure - From PENDING is an invalid transition", func(t *testing.T) {
		app := suite.createPerya()

		_, err := suite.applicationService.Submit(suite.ctx, suite.caller(superAdminID), app.ID)
		assert.ErrorIs(t, err, common.ErrConflict)
		assert.ErrorIs(t, err, common.ErrInvalidTransition)
	})

	suite.T().Run("Failure - Zero total is not payable", func(t *testing.T) {
		app := suite.assessedPerya()
		suite.zeroFees(app)

		_, err := suite.applicationService.Submit(suite.ctx, suite.caller(assessorID), app.ID)
		assert.ErrorIs(t, err, common.ErrValidation)

		current, err := suite.applicationService.Get(suite.ctx, app.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusAssessed, current.Status)
	})

	suite.T().Run("Failure - Unknown application", func(t *testing.T) {
		_, err := suite.applicationService.Submit(suite.ctx, suite.caller(assessorID), 99999)
		assert.ErrorIs(t, err, common.ErrNotFound)
	})
}

func (suite *ApplicationServiceTestSuite) TestApprove() {
	suite.T().Run("Success - Fees locked and creator notified", func(t *testing.T) {
		app := suite.pendingApprovalPerya()

		approved, err := suite.applicationService.Approve(suite.ctx, suite.caller(approverID), app.ID)

		assert.NoError(t, err)
		assert.Equal(t, domain.StatusApproved, approved.Status)
		if assert.NotNil(t, approved.ApproverID) {
			assert.Equal(t, approverID, *approved.ApproverID)
		}
		assert.NotNil(t, approved.ApprovedAt)
		for _, f := range approved.AssessedFees {
			assert.True(t, f.Locked)
		}
		// the number assigned at assessment is kept
		assert.Equal(t, app.ApplicationNumber, approved.ApplicationNumber)

		sent := suite.notifier.byType(domain.EventApproved)
		if assert.Len(t, sent, 1) {
			assert.Equal(t, []uint64{creatorID}, sent[0].Recipients)
		}
	})

	suite.T().Run("Failure - Assessor lacks the approve capability", func(t *testing.T) {
		app := suite.pendingApprovalPerya()

		_, err := suite.applicationService.Approve(suite.ctx, suite.caller(assessorID), app.ID)
		assert.ErrorIs(t, err, common.ErrAuthorization)
	})

	suite.T().Run("Failure - Super admin still needs the right state", func(t *testing.T) {
		app := suite.assessedPerya()

		_, err := suite.applicationService.Approve(suite.ctx, suite.caller(superAdminID), app.ID)
		assert.ErrorIs(t, err, common.ErrConflict)
	})

	suite.T().Run("Failure - Fees corrected to zero while pending approval", func(t *testing.T) {
		app := suite.pendingApprovalPerya()
		suite.zeroFees(app)

		_, err := suite.applicationService.Approve(suite.ctx, suite.caller(approverID), app.ID)
		assert.ErrorIs(t, err, common.ErrValidation)

		current, err := suite.applicationService.Get(suite.ctx, app.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPendingApproval, current.Status)
		assert.False(t, current.HasLockedFees())
	})
}

func (suite *ApplicationServiceTestSuite) TestApprove_ConcurrentApprovalsOnlyOneWins() {
	app := suite.pendingApprovalPerya()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = suite.applicationService.Approve(suite.ctx, suite.caller(approverID), app.ID)
		}(i)
	}
	wg.Wait()

	succeeded, conflicted := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case common.Kind(err) == common.ErrConflict:
			conflicted++
		}
	}
	suite.Equal(1, succeeded)
	suite.Equal(1, conflicted)
	suite.Equal(1, countOf(suite.auditActions(app.ID), domain.AuditApprove))
}

func (suite *ApplicationServiceTestSuite) TestReject() {
	suite.T().Run("Failure - Empty reason", func(t *testing.T) {
		app := suite.pendingApprovalPerya()

		_, err := suite.applicationService.Reject(suite.ctx, suite.caller(approverID), app.ID, dto.RejectRequest{Reason: "   "})
		assert.ErrorIs(t, err, common.ErrValidation)
	})

	suite.T().Run("Success - Rejected and terminal", func(t *testing.T) {
		app := suite.pendingApprovalPerya()

		rejected, err := suite.applicationService.Reject(suite.ctx, suite.caller(approverID), app.ID,
			dto.RejectRequest{Reason: "Incomplete documents"})

		assert.NoError(t, err)
		assert.Equal(t, domain.StatusRejected, rejected.Status)
		if assert.NotNil(t, rejected.RejectionReason) {
			assert.Equal(t, "Incomplete documents", *rejected.RejectionReason)
		}
		assert.True(t, rejected.HasLockedFees())
		assert.Len(t, suite.notifier.byType(domain.EventRejected), 1)

		_, err = suite.applicationService.Approve(suite.ctx, suite.caller(approverID), app.ID)
		assert.ErrorIs(t, err, common.ErrConflict)
	})
}

func (suite *ApplicationServiceTestSuite) TestIssueAndRelease() {
	suite.T().Run("Failure - No document", func(t *testing.T) {
		app := suite.paidPerya()

		_, err := suite.applicationService.Issue(suite.ctx, suite.caller(superAdminID), app.ID, dto.IssueRequest{}, nil)
		assert.ErrorIs(t, err, common.ErrValidation)
	})

	suite.T().Run("Success - Issue with a document URL then release", func(t *testing.T) {
		app := suite.paidPerya()

		issued, err := suite.applicationService.Issue(suite.ctx, suite.caller(superAdminID), app.ID,
			dto.IssueRequest{DocumentURL: "https://docs.example.com/permit.pdf"}, nil)
		assert.NoError(t, err)
		assert.Equal(t, domain.StatusIssued, issued.Status)
		if assert.NotNil(t, issued.PermitDocumentURL) {
			assert.Equal(t, "https://docs.example.com/permit.pdf", *issued.PermitDocumentURL)
		}

		released, err := suite.applicationService.Release(suite.ctx, suite.caller(superAdminID), app.ID)
		assert.NoError(t, err)
		assert.Equal(t, domain.StatusReleased, released.Status)
		assert.NotNil(t, released.ReleasedAt)

		actions := suite.auditActions(app.ID)
		assert.Contains(t, actions, domain.AuditIssue)
		assert.Contains(t, actions, domain.AuditRelease)
	})

	suite.T().Run("Success - Uploaded document is named after the application number", func(t *testing.T) {
		app := suite.paidPerya()

		issued, err := suite.applicationService.Issue(suite.ctx, suite.caller(superAdminID), app.ID,
			dto.IssueRequest{}, &multipart.FileHeader{Filename: "permit.pdf"})

		assert.NoError(t, err)
		if assert.NotNil(t, issued.PermitDocumentURL) && assert.NotNil(t, app.ApplicationNumber) {
			assert.Contains(t, *issued.PermitDocumentURL, *app.ApplicationNumber)
		}
	})

	suite.T().Run("Failure - Nothing uploaded for an application that cannot be issued", func(t *testing.T) {
		app := suite.approvedPerya()
		before := len(suite.documents.uploads)

		_, err := suite.applicationService.Issue(suite.ctx, suite.caller(superAdminID), app.ID,
			dto.IssueRequest{}, &multipart.FileHeader{Filename: "permit.pdf"})

		assert.ErrorIs(t, err, common.ErrConflict)
		assert.Len(t, suite.documents.uploads, before)
	})

	suite.T().Run("Failure - Release before issue", func(t *testing.T) {
		app := suite.paidPerya()

		_, err := suite.applicationService.Release(suite.ctx, suite.caller(superAdminID), app.ID)
		assert.ErrorIs(t, err, common.ErrConflict)
	})
}

func TestApplicationServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ApplicationServiceTestSuite))
}
