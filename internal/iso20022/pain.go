package iso20022

import (
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/paynet/ebics-gateway/internal/xmlenc"
	"github.com/paynet/ebics-gateway/pkg/errors"
)

const iso8601Seconds = "2006-01-02T15:04:05"
const dateOnly = "2006-01-02"

// EmitPain001 renders req as a pain.001.001.03 CustomerCreditTransferInitiation
// document carrying exactly one PmtInf with exactly one CdtTrfTxInf.
func EmitPain001(req PaymentRequest) []byte {
	endToEndID := req.EndToEndID
	if endToEndID == "" {
		endToEndID = "NOTPROVIDED"
	}

	grpHdr := xmlenc.NewElement("GrpHdr",
		xmlenc.NewText("MsgId", req.MessageID),
		xmlenc.NewText("CreDtTm", req.CreationDateTime.UTC().Format(iso8601Seconds)),
		xmlenc.NewText("NbOfTxs", "1"),
		xmlenc.NewText("CtrlSum", formatAmount(req.Amount)),
		xmlenc.NewElement("InitgPty",
			xmlenc.NewText("Nm", req.DebtorName),
		),
	)

	pmtTpInf := xmlenc.NewElement("PmtTpInf",
		xmlenc.NewElement("SvcLvl", xmlenc.NewText("Cd", "SEPA")),
	)

	dbtrAcct := xmlenc.NewElement("DbtrAcct",
		xmlenc.NewElement("Id", xmlenc.NewText("IBAN", req.DebtorIBAN)),
	)

	var dbtrAgt *xmlenc.Node
	if req.DebtorBIC != "" {
		dbtrAgt = xmlenc.NewElement("DbtrAgt", xmlenc.NewElement("FinInstnId", xmlenc.NewText("BIC", req.DebtorBIC)))
	} else {
		dbtrAgt = xmlenc.NewElement("DbtrAgt", xmlenc.NewElement("FinInstnId", xmlenc.NewElement("Othr", xmlenc.NewText("Id", "NOTPROVIDED"))))
	}

	var cdtrAgt *xmlenc.Node
	if req.CreditorBIC != "" {
		cdtrAgt = xmlenc.NewElement("CdtrAgt", xmlenc.NewElement("FinInstnId", xmlenc.NewText("BIC", req.CreditorBIC)))
	}

	cdtTrfTxInf := xmlenc.NewElement("CdtTrfTxInf",
		xmlenc.NewElement("PmtId",
			xmlenc.NewText("EndToEndId", endToEndID),
		),
		xmlenc.NewElement("Amt",
			xmlenc.NewText("InstdAmt", formatAmount(req.Amount)).WithAttr("Ccy", req.Currency),
		),
	)
	if cdtrAgt != nil {
		cdtTrfTxInf.Children = append(cdtTrfTxInf.Children, cdtrAgt)
	}
	cdtTrfTxInf.Children = append(cdtTrfTxInf.Children,
		xmlenc.NewElement("Cdtr", xmlenc.NewText("Nm", req.CreditorName)),
		xmlenc.NewElement("CdtrAcct", xmlenc.NewElement("Id", xmlenc.NewText("IBAN", req.CreditorIBAN))),
	)
	if req.Subject != "" {
		cdtTrfTxInf.Children = append(cdtTrfTxInf.Children,
			xmlenc.NewElement("RmtInf", xmlenc.NewText("Ustrd", req.Subject)),
		)
	}

	pmtInf := xmlenc.NewElement("PmtInf",
		xmlenc.NewText("PmtInfId", req.PaymentInformationID),
		xmlenc.NewText("PmtMtd", "TRF"),
		xmlenc.NewText("BtchBookg", "true"),
		xmlenc.NewText("NbOfTxs", "1"),
		xmlenc.NewText("CtrlSum", formatAmount(req.Amount)),
		pmtTpInf,
		xmlenc.NewText("ReqdExctnDt", req.RequestedExecutionDate.Format(dateOnly)),
		xmlenc.NewElement("Dbtr", xmlenc.NewText("Nm", req.DebtorName)),
		dbtrAcct,
		dbtrAgt,
		xmlenc.NewText("ChrgBr", "SLEV"),
		cdtTrfTxInf,
	)

	doc := xmlenc.NewElement("Document",
		xmlenc.NewElement("CstmrCdtTrfInitn", grpHdr, pmtInf),
	)

	return xmlenc.Serialize(doc)
}

func formatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// ParsePain001 decodes a pain.001.001.03 CustomerCreditTransferInitiation
// document emitted by EmitPain001 back into a PaymentRequest, recovering
// exactly the fields a submission round trip needs to verify: message and
// end-to-end identifiers, both parties' IBAN/BIC/name, amount, currency,
// and remittance subject. It expects exactly one PmtInf with exactly one
// CdtTrfTxInf, the same shape EmitPain001 always produces.
func ParsePain001(r io.Reader) (PaymentRequest, error) {
	root, err := xmlenc.Parse(r)
	if err != nil {
		return PaymentRequest{}, err
	}
	if err := xmlenc.RequireRoot(root, "Document"); err != nil {
		return PaymentRequest{}, errors.Parse(err, "pain001: root must be Document")
	}

	cstmrCdtTrfInitn, err := xmlenc.RequireUniqueChild(root, "CstmrCdtTrfInitn")
	if err != nil {
		return PaymentRequest{}, err
	}

	grpHdr, err := xmlenc.RequireUniqueChild(cstmrCdtTrfInitn, "GrpHdr")
	if err != nil {
		return PaymentRequest{}, err
	}
	msgIDNode, err := xmlenc.RequireUniqueChild(grpHdr, "MsgId")
	if err != nil {
		return PaymentRequest{}, err
	}
	creDtTmNode, err := xmlenc.RequireUniqueChild(grpHdr, "CreDtTm")
	if err != nil {
		return PaymentRequest{}, err
	}
	creDtTm, err := time.Parse(iso8601Seconds, creDtTmNode.TrimmedText())
	if err != nil {
		return PaymentRequest{}, errors.Parse(err, "pain001: invalid CreDtTm %q", creDtTmNode.TrimmedText())
	}

	pmtInf, err := xmlenc.RequireUniqueChild(cstmrCdtTrfInitn, "PmtInf")
	if err != nil {
		return PaymentRequest{}, err
	}
	pmtInfIDNode, err := xmlenc.RequireUniqueChild(pmtInf, "PmtInfId")
	if err != nil {
		return PaymentRequest{}, err
	}
	reqdExctnDtNode, err := xmlenc.RequireUniqueChild(pmtInf, "ReqdExctnDt")
	if err != nil {
		return PaymentRequest{}, err
	}
	reqdExctnDt, err := time.Parse(dateOnly, reqdExctnDtNode.TrimmedText())
	if err != nil {
		return PaymentRequest{}, errors.Parse(err, "pain001: invalid ReqdExctnDt %q", reqdExctnDtNode.TrimmedText())
	}

	dbtr, err := xmlenc.RequireUniqueChild(pmtInf, "Dbtr")
	if err != nil {
		return PaymentRequest{}, err
	}
	dbtrNmNode, err := xmlenc.RequireUniqueChild(dbtr, "Nm")
	if err != nil {
		return PaymentRequest{}, err
	}

	dbtrAcct, err := xmlenc.RequireUniqueChild(pmtInf, "DbtrAcct")
	if err != nil {
		return PaymentRequest{}, err
	}
	debtorIBAN, err := ibanFromAcctID(dbtrAcct)
	if err != nil {
		return PaymentRequest{}, err
	}

	dbtrAgt, err := xmlenc.RequireUniqueChild(pmtInf, "DbtrAgt")
	if err != nil {
		return PaymentRequest{}, err
	}
	debtorBIC, err := bicFromAgt(dbtrAgt)
	if err != nil {
		return PaymentRequest{}, err
	}

	cdtTrfTxInf, err := xmlenc.RequireUniqueChild(pmtInf, "CdtTrfTxInf")
	if err != nil {
		return PaymentRequest{}, err
	}

	pmtID, err := xmlenc.RequireUniqueChild(cdtTrfTxInf, "PmtId")
	if err != nil {
		return PaymentRequest{}, err
	}
	endToEndIDNode, err := xmlenc.RequireUniqueChild(pmtID, "EndToEndId")
	if err != nil {
		return PaymentRequest{}, err
	}
	endToEndID := endToEndIDNode.TrimmedText()
	if endToEndID == "NOTPROVIDED" {
		endToEndID = ""
	}

	amt, err := xmlenc.RequireUniqueChild(cdtTrfTxInf, "Amt")
	if err != nil {
		return PaymentRequest{}, err
	}
	instdAmtNode, err := xmlenc.RequireUniqueChild(amt, "InstdAmt")
	if err != nil {
		return PaymentRequest{}, err
	}
	amount, err := decimal.NewFromString(instdAmtNode.TrimmedText())
	if err != nil {
		return PaymentRequest{}, errors.Parse(err, "pain001: invalid InstdAmt %q", instdAmtNode.TrimmedText())
	}
	currency, _ := instdAmtNode.Attr("Ccy")

	var creditorBIC string
	if cdtrAgt, ok, err := xmlenc.MaybeUniqueChild(cdtTrfTxInf, "CdtrAgt"); err != nil {
		return PaymentRequest{}, err
	} else if ok {
		creditorBIC, err = bicFromAgt(cdtrAgt)
		if err != nil {
			return PaymentRequest{}, err
		}
	}

	cdtr, err := xmlenc.RequireUniqueChild(cdtTrfTxInf, "Cdtr")
	if err != nil {
		return PaymentRequest{}, err
	}
	cdtrNmNode, err := xmlenc.RequireUniqueChild(cdtr, "Nm")
	if err != nil {
		return PaymentRequest{}, err
	}

	cdtrAcct, err := xmlenc.RequireUniqueChild(cdtTrfTxInf, "CdtrAcct")
	if err != nil {
		return PaymentRequest{}, err
	}
	creditorIBAN, err := ibanFromAcctID(cdtrAcct)
	if err != nil {
		return PaymentRequest{}, err
	}

	var subject string
	if rmtInf, ok, err := xmlenc.MaybeUniqueChild(cdtTrfTxInf, "RmtInf"); err != nil {
		return PaymentRequest{}, err
	} else if ok {
		if ustrd, ok, err := xmlenc.MaybeUniqueChild(rmtInf, "Ustrd"); err != nil {
			return PaymentRequest{}, err
		} else if ok {
			subject = ustrd.TrimmedText()
		}
	}

	return PaymentRequest{
		MessageID:              msgIDNode.TrimmedText(),
		PaymentInformationID:   pmtInfIDNode.TrimmedText(),
		CreationDateTime:       creDtTm,
		RequestedExecutionDate: reqdExctnDt,
		DebtorName:             dbtrNmNode.TrimmedText(),
		DebtorIBAN:             debtorIBAN,
		DebtorBIC:              debtorBIC,
		CreditorName:           cdtrNmNode.TrimmedText(),
		CreditorIBAN:           creditorIBAN,
		CreditorBIC:            creditorBIC,
		Amount:                 amount,
		Currency:               currency,
		Subject:                subject,
		EndToEndID:             endToEndID,
	}, nil
}

// ibanFromAcctID extracts the IBAN from a DbtrAcct/CdtrAcct's Id/IBAN child.
func ibanFromAcctID(acct *xmlenc.Node) (string, error) {
	id, err := xmlenc.RequireUniqueChild(acct, "Id")
	if err != nil {
		return "", err
	}
	ibanNode, err := xmlenc.RequireUniqueChild(id, "IBAN")
	if err != nil {
		return "", err
	}
	return ibanNode.TrimmedText(), nil
}

// bicFromAgt extracts the BIC from a DbtrAgt/CdtrAgt's FinInstnId/BIC
// child, returning "" when EmitPain001's NOTPROVIDED placeholder is found
// instead (the Othr/Id branch it emits when no BIC is known).
func bicFromAgt(agt *xmlenc.Node) (string, error) {
	finInstnId, err := xmlenc.RequireUniqueChild(agt, "FinInstnId")
	if err != nil {
		return "", err
	}
	if bicNode, ok, err := xmlenc.MaybeUniqueChild(finInstnId, "BIC"); err != nil {
		return "", err
	} else if ok {
		return bicNode.TrimmedText(), nil
	}
	return "", nil
}
